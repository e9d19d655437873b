// Package management speaks the container's HTTP management protocol.
//
// Requests and responses use the JSON form of the container's management
// model: an operation name, an address made of type/name segments, flat
// parameters and, for composite operations, nested steps. Requests that carry
// artifact content are sent as multipart uploads with the content streamed.
package management
