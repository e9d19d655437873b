// Package logger wraps zap with a global sugared logger and context helpers.
//
// Services take a context and log through the logger stored in it, so names and
// fields added with WithName, WithKV and WithFields follow a request through the
// call chain. Configure sets the level and the console or JSON encoder once at
// startup.
package logger
