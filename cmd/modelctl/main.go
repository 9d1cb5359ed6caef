package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modelmgr/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	defaultAddr := "http://127.0.0.1:8090"
	if v := os.Getenv("MODELMGR_ADDR"); v != "" {
		defaultAddr = v
	}
	var addr string

	root := &cobra.Command{
		Use:           "modelctl",
		Short:         "Admin CLI for the modelmgr daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "Daemon base URL (defaults MODELMGR_ADDR)")
	cl := func() *client { return newClient(addr) }

	var refresh bool
	hubCmd := &cobra.Command{
		Use:   "hub",
		Short: "List artifacts discoverable on the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/hub/artifacts"
			if refresh {
				path += "?refresh=true"
			}
			var resp types.ArtifactsResponse
			if err := cl().get(path, &resp); err != nil {
				return err
			}
			for _, a := range resp.Artifacts {
				fmt.Printf("%-50s %-8s %12d bytes  %d files\n", a.RepoID, a.Kind, a.TotalBytes, len(a.Files))
			}
			return nil
		},
	}
	hubCmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the discovery cache")
	root.AddCommand(hubCmd)

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List downloaded models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp types.ModelsResponse
			if err := cl().get("/models", &resp); err != nil {
				return err
			}
			for _, m := range resp.Models {
				vision := ""
				if m.HasVision() {
					vision = " +vision"
				}
				fmt.Printf("%-60s %-8s %12d bytes  %s%s\n", m.ID, m.Quant, m.SizeBytes, m.Provenance, vision)
			}
			return nil
		},
	})

	var pullURL string
	var pullBackground bool
	pullCmd := &cobra.Command{
		Use:   "pull <repoID> <fileName>",
		Short: "Download a model file into managed storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, fileName := args[0], args[1]
			url := pullURL
			if url == "" {
				url = fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", repoID, fileName)
			}
			file := types.RemoteFile{Name: fileName, DownloadURL: url}
			if pullBackground {
				var resp struct {
					ID int64 `json:"id"`
				}
				err := cl().post("/background/downloads", types.BackgroundDownloadRequest{RepoID: repoID, File: file}, &resp)
				if err != nil {
					return err
				}
				fmt.Printf("background download %d started\n", resp.ID)
				return nil
			}
			var entry types.DownloadedModel
			if err := cl().post("/downloads", types.DownloadRequest{RepoID: repoID, File: file}, &entry); err != nil {
				return err
			}
			fmt.Printf("downloaded %s (%d bytes) -> %s\n", entry.ID, entry.SizeBytes, entry.Path)
			return nil
		},
	}
	pullCmd.Flags().StringVar(&pullURL, "url", "", "Override the download URL")
	pullCmd.Flags().BoolVar(&pullBackground, "background", false, "Use the durable background transport")
	root.AddCommand(pullCmd)

	root.AddCommand(&cobra.Command{
		Use:   "rm <modelID>",
		Short: "Delete a model and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl().delete("/models/" + args[0])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st types.StatusResponse
			if err := cl().get("/status", &st); err != nil {
				return err
			}
			for _, s := range st.Slots {
				state := s.ModelID
				if state == "" {
					state = "(empty)"
				}
				if s.Busy {
					state += " [busy]"
				}
				fmt.Printf("slot %-6s %s\n", s.Slot, state)
			}
			fmt.Printf("storage: %d models, %d bytes used, %d bytes free\n",
				st.Storage.Models, st.Storage.UsedBytes, st.Storage.AvailableBytes)
			fmt.Printf("background transport: available=%v, %d active\n",
				st.BackgroundAvailable, len(st.ActiveDownloads))
			fmt.Printf("uptime: %ds\n", st.UptimeSeconds)
			return nil
		},
	})

	var loadSlot string
	var loadYes bool
	loadCmd := &cobra.Command{
		Use:   "load <modelID>",
		Short: "Make a model resident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl().post("/load", types.LoadRequest{
				ModelID:            args[0],
				Slot:               types.Slot(loadSlot),
				AcknowledgeWarning: loadYes,
			}, nil)
		},
	}
	loadCmd.Flags().StringVar(&loadSlot, "slot", "text", "Slot: text|image")
	loadCmd.Flags().BoolVar(&loadYes, "yes", false, "Accept a warning-severity admission result")
	root.AddCommand(loadCmd)

	var unloadSlot string
	var unloadAll bool
	unloadCmd := &cobra.Command{
		Use:   "unload",
		Short: "Vacate a slot (or all slots)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unloadAll {
				var resp types.UnloadAllResponse
				if err := cl().post("/unload/all", struct{}{}, &resp); err != nil {
					return err
				}
				fmt.Printf("primary=%v secondary=%v\n", resp.PrimaryUnloaded, resp.SecondaryUnloaded)
				return nil
			}
			return cl().post("/unload", map[string]string{"slot": unloadSlot}, nil)
		},
	}
	unloadCmd.Flags().StringVar(&unloadSlot, "slot", "text", "Slot: text|image")
	unloadCmd.Flags().BoolVar(&unloadAll, "all", false, "Vacate both slots")
	root.AddCommand(unloadCmd)

	return root
}
