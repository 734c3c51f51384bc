package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the build-time binary version (e.g. "v1.2.3").
// It is a distinct type so that Wire can distinguish it from plain
// strings when injecting dependencies.
type Version string

// MinControllerVersion is the oldest controller release whose stream
// endpoint accepts a resourceVersion cursor.
const MinControllerVersion = "v1.8.0"

// ServerInfoRepo reports the remote controller's build information.
type ServerInfoRepo interface {
	ServerVersion(ctx context.Context) (string, error)
}

// ControllerVersion is the parsed remote version together with the
// compatibility verdict.
type ControllerVersion struct {
	Raw       string
	Supported bool
}

type VersionUseCase struct {
	info ServerInfoRepo
}

func NewVersionUseCase(info ServerInfoRepo) *VersionUseCase {
	return &VersionUseCase{info: info}
}

// ControllerVersion fetches and checks the remote controller version.
func (uc *VersionUseCase) ControllerVersion(ctx context.Context) (ControllerVersion, error) {
	raw, err := uc.info.ServerVersion(ctx)
	if err != nil {
		return ControllerVersion{}, err
	}

	supported, err := versionSupported(raw)
	if err != nil {
		return ControllerVersion{}, err
	}
	return ControllerVersion{Raw: raw, Supported: supported}, nil
}

func versionSupported(raw string) (bool, error) {
	// Controller builds report e.g. "v2.9.3+6eba5be"; build metadata
	// is irrelevant for the comparison.
	trimmed, _, _ := strings.Cut(raw, "+")

	v, err := semver.NewVersion(trimmed)
	if err != nil {
		return false, fmt.Errorf("invalid controller version %q: %w", raw, err)
	}

	minVersion, err := semver.NewVersion(MinControllerVersion)
	if err != nil {
		return false, err
	}

	return v.GreaterThanEqual(minVersion), nil
}
