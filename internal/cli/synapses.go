package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/config"
	"github.com/kilupskalvis/skedits/internal/models"
)

var synapsesCmd = &cobra.Command{
	Use:   "synapses",
	Short: "Manage the local synapse table",
}

var synapsesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import synapses from a JSON array",
	Long: `Import synapse annotations into the workspace's synapse table. The file
holds a JSON array of objects with id, pre_pt_root_id, post_pt_root_id,
pre_pt_level2_id, post_pt_level2_id and optionally ctr_pt_position. Rows
with an existing id are replaced.`,
	Args: cobra.ExactArgs(1),
	Run:  runSynapsesImport,
}

func init() {
	synapsesCmd.AddCommand(synapsesImportCmd)
}

func runSynapsesImport(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		exitError("failed to read %s: %v", args[0], err)
	}
	var syns []models.Synapse
	if err := json.Unmarshal(data, &syns); err != nil {
		exitError("failed to parse %s: %v", args[0], err)
	}

	st, err := annotation.Open(cfg.AnnotationPath())
	if err != nil {
		exitError("failed to open synapse table: %v", err)
	}
	defer st.Close()
	if err := st.Initialize(); err != nil {
		exitError("%v", err)
	}
	if err := st.InsertSynapses(context.Background(), syns); err != nil {
		exitError("failed to import synapses: %v", err)
	}
	fmt.Printf("Imported %d synapses\n", len(syns))
}
