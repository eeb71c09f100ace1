package api

import (
	"strings"

	"github.com/google/uuid"
)

const (
	OSTreeTypeID            = "ostree"
	OSTreeImporterTypeID    = "ostree_web_importer"
	OSTreeDistributorTypeID = "ostree_web_distributor"
)

// UUID4 returns a random UUID string.
func UUID4() string {
	return uuid.NewString()
}

// GenRepo returns the body of a random OSTree repository without a feed.
func GenRepo() *RepositoryBody {
	return &RepositoryBody{
		ID:             UUID4(),
		Notes:          map[string]any{"_repo-type": "OSTREE"},
		ImporterTypeID: OSTreeImporterTypeID,
		ImporterConfig: map[string]any{},
	}
}

// GenDistributor returns the body of an OSTree web distributor publishing at relativePath.
func GenDistributor(relativePath string) *DistributorBody {
	return &DistributorBody{
		DistributorTypeID: OSTreeDistributorTypeID,
		Config:            map[string]any{},
		DistributorConfig: map[string]any{"relative_path": relativePath},
	}
}

// GenDistributorUpdate returns the body that moves a distributor to relativePath.
func GenDistributorUpdate(relativePath string) *DistributorUpdate {
	return &DistributorUpdate{
		DistributorConfig: map[string]any{"relative_path": relativePath},
	}
}

// GenRelPath returns a relative path of random segments, two when segments < 1.
func GenRelPath(segments int) string {
	if segments < 1 {
		segments = 2
	}

	parts := make([]string, segments)
	for i := range parts {
		parts[i] = UUID4()
	}

	return strings.Join(parts, "/")
}
