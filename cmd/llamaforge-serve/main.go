// llamaforge-serve downloads a model (unless already present) and launches
// the built llama-server against it, opening the local web UI in the default
// browser. It assumes llamaforge already provisioned and built llama.cpp.
package main

import (
	"flag"

	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/internal/llamacpp"
	"github.com/llamaforge/llamaforge/pkg/download"
)

var (
	flagModelURL = flag.String("model", llamacpp.DefaultModelURL,
		"URL of the GGUF model to download and serve.")
	flagPort = flag.Int("port", 8080,
		"Port for the llama-server web UI.")
	flagVerbosity = flag.Int("verbosity", int(download.Normal),
		"Output verbosity: 0 quiet, 1 normal, 2 verbose.")
	flagWorkDir = flag.String("workdir", llamacpp.DefaultWorkDir,
		"Work directory holding the llama.cpp build and models.")
)

func main() {
	flag.Parse()
	project := &llamacpp.Project{
		WorkDir:   *flagWorkDir,
		Verbosity: download.Verbosity(*flagVerbosity),
	}
	modelPath, err := project.EnsureModel(*flagModelURL)
	if err != nil {
		klog.Fatalf("Failed on error: %+v", err)
	}
	if err := project.Serve(modelPath, *flagPort); err != nil {
		klog.Fatalf("Failed on error: %+v", err)
	}
}
