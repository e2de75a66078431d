package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

var versionTemplate = template.Must(template.New("version").Parse(`
 Version:	{{.Version}}
 Git commit:	{{.GitCommit}}
 Built:		{{.BuildTime}}
 Go version:	{{.GoVersion}}
 OS/Arch:	{{.Os}}/{{.Arch}}`))

type versionInfo struct {
	// build-time info
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	// client machine info
	GoVersion string `json:"go_version"`
	Os        string `json:"os"`
	Arch      string `json:"arch"`
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		Version:   getVersion(),
		GitCommit: getCommit(),
		BuildTime: getBuildTimeDisplay(),
		GoVersion: runtime.Version(),
		Os:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// render formats info as an aligned text block or, with asJSON, a JSON object.
func render(info versionInfo, asJSON bool) ([]byte, error) {
	if asJSON {
		return json.Marshal(info)
	}

	var buf bytes.Buffer
	if err := versionTemplate.Execute(&buf, info); err != nil {
		return nil, fmt.Errorf("template executing error: %w", err)
	}
	return buf.Bytes(), nil
}

// NewVersionCmd prints build information of the creddigestd binary.
func NewVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := render(currentVersionInfo(), asJSON)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return cmd
}
