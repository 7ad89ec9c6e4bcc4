package main

import (
	"fmt"
	"strings"
	"time"

	"context"

	"dagger/medrag/internal/dagger"
)

// Build and return directory of go binaries
func (m *Medrag) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix
	gooses := []string{"linux", "darwin"}
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := m.goContainer()

	for _, goos := range gooses {
		for _, goarch := range goarches {
			// create directory for each OS and architecture
			path := fmt.Sprintf("%s/%s/", goos, goarch)

			// build artifact
			build := golang.
				WithEnvVariable("GOOS", goos).
				WithEnvVariable("GOARCH", goarch).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/medrag"})

			// add build to outputs
			outputs = outputs.WithDirectory(path, build.Directory(path))
		}
	}

	// return build directory
	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (m *Medrag) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/clidram/medrag/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/clidram/medrag/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/clidram/medrag/pkg/utils.Buildtime=%s'", buildtime),
	}

	return m.Build(ctx, strings.Join(ldflags, " "))
}
