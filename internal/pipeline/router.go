package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/resilience"
)

// Route maps a share URL to the platform that owns it. An unrecognized
// host is job-fatal: nothing downstream can guess which acquisition path
// to run.
func Route(rawURL string) (model.Platform, error) {
	platform := model.DetectPlatform(rawURL)
	if platform == model.PlatformUnknown {
		return platform, &resilience.InitialFetchError{
			Err: eris.Errorf("unrecognized presentation source: %s", rawURL),
		}
	}
	return platform, nil
}
