package analysis

import "github.com/m-mizutani/goerr/v2"

var (
	// TagValidation marks a request rejected before any provider or storage call.
	TagValidation = goerr.NewTag("validation")
	// TagProvider marks a failed or unparseable vision provider call.
	TagProvider = goerr.NewTag("provider")
	// TagStorage marks a failed lookup or insert.
	TagStorage = goerr.NewTag("storage")
)
