package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new skedits workspace",
	Long: `Initialize a new skedits workspace in the current directory.
This creates a .skedits directory holding the configuration, the artifact
cache and the synapse table.`,
	Run: runInit,
}

var (
	initURL   string
	initTable string
)

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "", "Segmentation graph service URL")
	initCmd.Flags().StringVar(&initTable, "table", "", "Segmentation table name")
}

func runInit(cmd *cobra.Command, args []string) {
	if _, err := config.FindRoot(); err == nil {
		exitError("skedits workspace already exists")
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}
	cfg, err := config.Initialize(cwd, initURL, initTable)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	syn, err := annotation.Open(cfg.AnnotationPath())
	if err != nil {
		exitError("failed to create synapse table: %v", err)
	}
	defer syn.Close()
	if err := syn.Initialize(); err != nil {
		exitError("failed to initialize synapse table: %v", err)
	}

	fmt.Printf("Initialized skedits workspace in %s/\n", config.Dir)
	if initURL == "" {
		fmt.Printf("Set service.url in %s/%s before fetching segments.\n", config.Dir, config.ConfigFile)
	} else {
		fmt.Printf("Service: %s (table %s)\n", initURL, initTable)
	}
}
