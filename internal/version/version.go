// Package version хранит сведения о сборке, заданные через -ldflags:
//
//	-X github.com/vladislavdragonenkov/stockd/internal/version.version=v1.2.0
//	-X github.com/vladislavdragonenkov/stockd/internal/version.commit=$(git rev-parse --short HEAD)
//	-X github.com/vladislavdragonenkov/stockd/internal/version.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
package version

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает commit сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }
