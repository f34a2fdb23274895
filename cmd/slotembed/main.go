// slotembed builds the vocabularies and embedding vectors of a slot-annotated corpus, and
// prints a report.
//
// Usage:
//
//	slotembed -config=config.yaml [-export=vectors.safetensors] [-v=1]
//
// Without a configuration file the defaults are used; -write_config saves them for editing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gomlx/go-slotembed/config"
	"github.com/gomlx/go-slotembed/pipeline"
	"github.com/joho/godotenv"
	"k8s.io/klog/v2"
)

var (
	flagConfig      = flag.String("config", "config.yaml", "Path to the YAML configuration file. Defaults are used if it doesn't exist.")
	flagWriteConfig = flag.Bool("write_config", false, "Write the configuration (defaults merged with -config) to the -config path, and exit.")
	flagExport      = flag.String("export", "", "If set, overrides export_path: safetensors file where to save the model input vocabulary and its vectors.")
	flagCatalog     = flag.String("catalog", "", "If set, overrides catalog_path: where the slot catalog is loaded from, or saved to.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to load .env file: %v", err)
	}
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		klog.Exitf("Failed to load configuration: %+v", err)
	}
	if *flagExport != "" {
		cfg.ExportPath = *flagExport
	}
	if *flagCatalog != "" {
		cfg.CatalogPath = *flagCatalog
	}
	if *flagWriteConfig {
		if err := config.Save(*flagConfig, cfg); err != nil {
			klog.Exitf("Failed to save configuration: %+v", err)
		}
		fmt.Printf("Configuration saved to %q\n", *flagConfig)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	result, err := pipeline.Run(ctx, cfg)
	if err != nil {
		klog.Exitf("Failed: %+v", err)
	}
	fmt.Println(renderReport(result))
}
