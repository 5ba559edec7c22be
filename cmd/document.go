package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	v1 "github.com/emrgen/docvault/apis/v1"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(createDocCmd())
	rootCmd.AddCommand(listDocCmd())
	rootCmd.AddCommand(getDocCmd())
	rootCmd.AddCommand(listDocVersionsCmd())
	rootCmd.AddCommand(uploadVersionCmd())
	rootCmd.AddCommand(shareDocCmd())
	rootCmd.AddCommand(accessDocCmd())
	rootCmd.AddCommand(downloadVersionCmd())
	rootCmd.AddCommand(deleteDocCmd())
}

func createDocCmd() *cobra.Command {
	var file string
	var name string

	var required = []string{"file"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a document",
		Long:    `upload a file, convert it to pdf and store it as the first version of a new document`,
		Example: "docvault create -f <file> -n <name>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			f, err := os.Open(file)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer f.Close()

			res, err := newClient().CreateDocument(cmd.Context(), name, filepath.Base(file), f)
			if err != nil {
				logrus.Error(err)
				return
			}

			color.Green("document created with id: %s", res.ID)
			printDocuments([]*v1.DocumentResponse{res})
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "", "file to upload (required)")
	command.Flags().StringVarP(&name, "name", "n", "", "name of the document")

	command.Flags().SortFlags = false

	return command
}

func listDocCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "list",
		Short:   "list documents you own or that are shared with you",
		Example: "docvault list",
		Run: func(cmd *cobra.Command, args []string) {
			res, err := newClient().ListDocuments(cmd.Context())
			if err != nil {
				logrus.Error(err)
				return
			}

			printDocuments(res)
		},
	}

	return command
}

func getDocCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "get",
		Short:   "get a document with its latest version",
		Example: "docvault get -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("document", docID) {
				return
			}

			res, err := newClient().GetDocument(cmd.Context(), docID)
			if err != nil {
				logrus.Error(err)
				return
			}

			printField("ID", res.ID)
			printField("Name", res.Name)
			printField("Owner", res.CreatedBy)
			printField("Permission", res.Permission)
			printField("Shared", strconv.FormatBool(res.Shared))
			if res.LatestVersion != nil {
				printField("Latest", res.LatestVersion.Label+" ("+res.LatestVersion.ID+")")
			}
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func listDocVersionsCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "versions",
		Short:   "list the versions of a document, newest first",
		Example: "docvault versions -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("document", docID) {
				return
			}

			res, err := newClient().ListVersions(cmd.Context(), docID)
			if err != nil {
				logrus.Error(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Label", "Size", "Latest", "Created"})
			for _, v := range res {
				latest := ""
				if v.IsLatest {
					latest = "*"
				}
				table.Append([]string{v.ID, v.Label, strconv.FormatInt(v.Size, 10), latest, v.CreatedAt.Format(time.RFC3339)})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func uploadVersionCmd() *cobra.Command {
	var docID string
	var file string
	var kind string

	var required = []string{"doc-id", "file"}

	command := &cobra.Command{
		Use:     "upload",
		Short:   "upload a new version of a document",
		Long:    `upload a new version; kind signed or annotated marks the version label with -signed or -annotated`,
		Example: "docvault upload -d <doc-id> -f <file> -k signed",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("document", docID) {
				return
			}

			f, err := os.Open(file)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer f.Close()

			res, err := newClient().UploadVersion(cmd.Context(), docID, kind, filepath.Base(file), f)
			if err != nil {
				logrus.Error(err)
				return
			}

			color.Green("version %s created with id: %s", res.Label, res.ID)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&file, "file", "f", "", "file to upload (required)")
	command.Flags().StringVarP(&kind, "kind", "k", "upload", "upload, signed or annotated")

	command.Flags().SortFlags = false

	return command
}

func shareDocCmd() *cobra.Command {
	var docID string
	var userID string
	var level string

	var required = []string{"doc-id", "user-id", "level"}

	command := &cobra.Command{
		Use:     "share",
		Short:   "grant a user a permission level on a document",
		Example: "docvault share -d <doc-id> -u <user-id> -l viewer|editor|owner",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("document", docID) || !checkUUID("user", userID) {
				return
			}

			res, err := newClient().Share(cmd.Context(), docID, userID, level)
			if err != nil {
				logrus.Error(err)
				return
			}

			color.Green("granted %s on %s to %s", res.Level, res.DocumentID, res.UserID)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&userID, "user-id", "u", "", "user to share with (required)")
	command.Flags().StringVarP(&level, "level", "l", "", "viewer, editor or owner (required)")

	command.Flags().SortFlags = false

	return command
}

func accessDocCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "access",
		Short:   "show your permission level on a document",
		Example: "docvault access -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("document", docID) {
				return
			}

			res, err := newClient().Access(cmd.Context(), docID)
			if err != nil {
				logrus.Error(err)
				return
			}

			if !res.HasAccess {
				color.Red("no access")
				return
			}
			printField("Permission", res.Level)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func downloadVersionCmd() *cobra.Command {
	var versionID string
	var output string

	var required = []string{"version-id", "output"}

	command := &cobra.Command{
		Use:     "download",
		Short:   "download the content of a version",
		Example: "docvault download -v <version-id> -o <file>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("version", versionID) {
				return
			}

			if err := download(cmd.Context(), versionID, output); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("saved to %s", output)
		},
	}

	command.Flags().StringVarP(&versionID, "version-id", "v", "", "version id (required)")
	command.Flags().StringVarP(&output, "output", "o", "", "output file (required)")

	return command
}

func download(ctx context.Context, versionID, output string) error {
	f, err := os.Create(output)
	if err != nil {
		return err
	}

	if _, err := newClient().Download(ctx, versionID, f); err != nil {
		f.Close()
		os.Remove(output)
		return err
	}

	return f.Close()
}

func deleteDocCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "delete",
		Short:   "delete a document with all its versions and permissions",
		Example: "docvault delete -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) || !checkUUID("document", docID) {
				return
			}

			if err := newClient().DeleteDocument(cmd.Context(), docID); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("document deleted")
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func printDocuments(docs []*v1.DocumentResponse) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Permission", "Shared", "Latest"})
	for _, doc := range docs {
		latest := ""
		if doc.LatestVersion != nil {
			latest = doc.LatestVersion.Label
		}
		table.Append([]string{doc.ID, doc.Name, doc.Permission, strconv.FormatBool(doc.Shared), latest})
	}
	table.Render()
}

func printField(label, value string) {
	color.Set(color.FgCyan)
	fmt.Print(label)
	color.Unset()
	fmt.Printf(": %s\n", value)
}

func checkUUID(kind, id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		logrus.Errorf("invalid %s id, expected a valid uuid", kind)
		return false
	}
	return true
}

// checkMissingFlags checks if the required flags are set and returns ok if they are set
func checkMissingFlags(cmd *cobra.Command, flags []string) bool {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if !cmd.Flag(required).Changed {
			missingFlags = append(missingFlags, required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) > 0 {
		var msg string
		for _, f := range missingFlags {
			msg += fmt.Sprintf("--%s ", f)
		}

		color.Red("missing: %s\n", msg)
		if len(providedFlags) > 0 {
			provided := strings.Join(providedFlags, " ")
			color.Green("provide: %s\n", provided)
		}

		cmd.Println("")

		cmd.Usage()

		return true
	}

	return false
}
