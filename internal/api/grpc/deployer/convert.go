package deployer

import (
	"fmt"

	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

// Field names shared by requests and responses.
const (
	FieldName        = "name"
	FieldContextRoot = "context_root"
	FieldChecksum    = "checksum"
	FieldVersion     = "version"
	FieldVersions    = "versions"
	FieldDeployment  = "deployment"
	FieldDeployments = "deployments"
)

// UnitToMap renders a unit as plain values.
func UnitToMap(unit deployment.DeployedUnit) map[string]any {
	return map[string]any{
		FieldName:        unit.Name,
		FieldContextRoot: unit.ContextRoot.String(),
		FieldChecksum:    unit.Checksum.Hex(),
		FieldVersion:     unit.Version.String(),
	}
}

// UnitFromStruct parses a unit rendered by UnitToMap.
func UnitFromStruct(s *structpb.Struct) (deployment.DeployedUnit, error) {
	fields := s.GetFields()

	unit := deployment.DeployedUnit{
		Name:        fields[FieldName].GetStringValue(),
		ContextRoot: deployment.ContextRoot(fields[FieldContextRoot].GetStringValue()),
		Version:     deployment.Version(fields[FieldVersion].GetStringValue()),
	}

	if raw := fields[FieldChecksum].GetStringValue(); raw != "" {
		checksum, err := deployment.ParseChecksum(raw)
		if err != nil {
			return deployment.DeployedUnit{}, err
		}

		unit.Checksum = checksum
	}

	return unit, nil
}

// VersionsToList renders versions as a list value.
func VersionsToList(versions []deployment.Version) []any {
	return lo.Map(versions, func(version deployment.Version, _ int) any {
		return version.String()
	})
}

// VersionsFromList parses a list value of versions.
func VersionsFromList(list *structpb.ListValue) []deployment.Version {
	return lo.Map(list.GetValues(), func(value *structpb.Value, _ int) deployment.Version {
		return deployment.Version(value.GetStringValue())
	})
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	return s, nil
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func requireString(req *structpb.Struct, name string) (string, error) {
	value := stringField(req, name)
	if value == "" {
		return "", fmt.Errorf("%s is required: %w", name, deployment.ErrValidation)
	}

	return value, nil
}

func checksumField(req *structpb.Struct) (deployment.Checksum, error) {
	raw, err := requireString(req, FieldChecksum)
	if err != nil {
		return nil, err
	}

	return deployment.ParseChecksum(raw)
}
