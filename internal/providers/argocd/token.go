package argocd

import (
	"context"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// StaticToken is a pre-issued API token taken from configuration.
type StaticToken string

func (t StaticToken) Acquire(context.Context) (core.Token, error) {
	if t == "" {
		return core.Token{}, &core.ErrInvalidInput{Field: "token", Message: "no API token configured"}
	}
	return core.Token{Value: string(t)}, nil
}
