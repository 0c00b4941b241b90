// Package main prints the versions and capabilities the pet analyzer depends
// on: the Go runtime, ONNX Runtime, CUDA availability and linked modules.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	petanalyzer "github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/config"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
)

func main() {
	app := &cli.App{
		Name:  "env-probe",
		Usage: "report the runtime environment of pet-analyzer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ort-lib",
				Value:   config.DefaultLibraryPath(),
				Usage:   "path to the onnxruntime shared library",
				EnvVars: []string{"PET_ANALYZER_ORT_LIB"},
			},
		},
		Action: func(c *cli.Context) error {
			return probe(c.App.Writer, c.String("ort-lib"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func probe(w io.Writer, libraryPath string) error {
	fmt.Fprintf(w, "pet-analyzer: %s\n", petanalyzer.GetVersion())
	fmt.Fprintf(w, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	version, err := inference.RuntimeVersion(libraryPath)
	if err != nil {
		fmt.Fprintf(w, "ONNX Runtime: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "ONNX Runtime: %s\n", version)
		cuda, err := inference.CUDAAvailable(libraryPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "CUDA available: %t\n", cuda)
	}

	for _, line := range moduleVersions() {
		fmt.Fprintln(w, line)
	}
	return nil
}

// moduleVersions lists the linked dependency modules, sorted by path
func moduleVersions() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return []string{"modules: build info unavailable"}
	}

	lines := make([]string, 0, len(info.Deps))
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		lines = append(lines, fmt.Sprintf("%s: %s", dep.Path, strings.TrimPrefix(dep.Version, "v")))
	}
	sort.Strings(lines)
	return lines
}
