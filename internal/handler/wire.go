package handler

import (
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for the HTTP action handler.
var ProviderSet = wire.NewSet(NewActionHandler)
