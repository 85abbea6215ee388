package root

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const envEndpoint = "ANALYTICS_ENDPOINT"

func addEndpointFlags(cmd *cobra.Command, endpoint *string) {
	cmd.Flags().StringVar(endpoint, "endpoint", os.Getenv(envEndpoint), "Collector URL; batches are only logged when empty (env "+envEndpoint+")")

	preRunE := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		// Ensure the endpoint url is canonical.
		*endpoint = canonicalEndpoint(*endpoint)

		if preRunE != nil {
			return preRunE(cmd, args)
		}
		return nil
	}
}

func canonicalEndpoint(endpoint string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(endpoint), "/"))
}
