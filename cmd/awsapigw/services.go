package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/awsapigw/app"
	"github.com/artpar/awsapigw/bootstrap"
	"github.com/artpar/awsapigw/domain/provision"
)

// endpointFlags override the configured defaults for one invocation.
type endpointFlags struct {
	accessKeyID     string
	secretAccessKey string
	region          string
	endpointURL     string
	keyNamePrefix   string
	usagePlans      string
}

var (
	svcFlags      endpointFlags
	resetStatus   string
	describeLocal bool
	describeJSON  bool
	listLimit     int
	listOffset    int
)

var createCmd = &cobra.Command{
	Use:   "create <service-id>",
	Short: "Provision a key for a service",
	Long: `Provision an API Gateway key for a service and attach its usage plans.

Examples:
  awsapigw create 42
  awsapigw create 42 --region eu-west-1 --usage-plans "plan-a,plan-b"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args, func(ctx context.Context, svc *app.LifecycleService, ep provision.Endpoint, p provision.CreateParams) error {
			_, err := svc.Create(ctx, ep, p)
			return err
		})
	},
}

var suspendCmd = &cobra.Command{
	Use:   "suspend <service-id>",
	Short: "Disable the key of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args, func(ctx context.Context, svc *app.LifecycleService, ep provision.Endpoint, p provision.CreateParams) error {
			return svc.Suspend(ctx, ep, p.ServiceID)
		})
	},
}

var unsuspendCmd = &cobra.Command{
	Use:   "unsuspend <service-id>",
	Short: "Re-enable the key of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args, func(ctx context.Context, svc *app.LifecycleService, ep provision.Endpoint, p provision.CreateParams) error {
			return svc.Unsuspend(ctx, ep, p.ServiceID)
		})
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate <service-id>",
	Short: "Delete the key and record of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args, func(ctx context.Context, svc *app.LifecycleService, ep provision.Endpoint, p provision.CreateParams) error {
			return svc.Terminate(ctx, ep, p.ServiceID)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <service-id>",
	Short: "Replace the key of an active service",
	Long: `Delete the key of a service and provision a new one.

Only services whose billing status is Active can be reset.

Examples:
  awsapigw reset 42
  awsapigw reset 42 --status Suspended   # refused`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		active := strings.EqualFold(resetStatus, "active")
		return runLifecycle(cmd, args, func(ctx context.Context, svc *app.LifecycleService, ep provision.Endpoint, p provision.CreateParams) error {
			_, err := svc.Reset(ctx, ep, p, active)
			return err
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <service-id>",
	Short: "Show the key of a service",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisioned services",
	RunE:  runList,
}

func init() {
	for _, c := range []*cobra.Command{createCmd, suspendCmd, unsuspendCmd, terminateCmd, resetCmd, describeCmd} {
		c.Flags().StringVar(&svcFlags.accessKeyID, "aws-key-id", "", "access key id (default from config)")
		c.Flags().StringVar(&svcFlags.secretAccessKey, "aws-key-secret", "", "secret access key (default from config)")
		c.Flags().StringVar(&svcFlags.region, "region", "", "region (default from config)")
		c.Flags().StringVar(&svcFlags.endpointURL, "endpoint-url", "", "key service endpoint override")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{createCmd, resetCmd} {
		c.Flags().StringVar(&svcFlags.keyNamePrefix, "prefix", "", "key name prefix (default from config)")
		c.Flags().StringVar(&svcFlags.usagePlans, "usage-plans", "", "usage plan ids, comma or newline separated")
	}
	resetCmd.Flags().StringVar(&resetStatus, "status", "Active", "billing status of the service")
	describeCmd.Flags().BoolVar(&describeLocal, "local", false, "skip the live key lookup")
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "print JSON")

	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of records")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "records to skip")
	rootCmd.AddCommand(listCmd)
}

type lifecycleFunc func(ctx context.Context, svc *app.LifecycleService, ep provision.Endpoint, p provision.CreateParams) error

// runLifecycle prints the callback result and fails unless it is "success".
func runLifecycle(cmd *cobra.Command, args []string, fn lifecycleFunc) error {
	id, err := parseServiceID(args[0])
	if err != nil {
		return err
	}
	if err := svcFlags.checkCredentials(); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ep, p := svcFlags.resolve(a, id)
	opErr := fn(cmd.Context(), a.Lifecycle, ep, p)

	result := provision.Rendered(opErr).Render()
	fmt.Fprintln(cmd.OutOrStdout(), result)
	if opErr != nil {
		return fmt.Errorf("%s failed for service %d", cmd.Name(), id)
	}
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	id, err := parseServiceID(args[0])
	if err != nil {
		return err
	}
	if err := svcFlags.checkCredentials(); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ep, _ := svcFlags.resolve(a, id)
	d, err := a.Lifecycle.Describe(cmd.Context(), ep, id, app.DescribeOptions{LocalOnly: describeLocal})
	if err != nil {
		return err
	}

	fields := d.Fields(a.Config().Provisioning.Location())
	out := cmd.OutOrStdout()
	if describeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(fields)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "%s\t%s\n", f.Label, f.Value)
	}
	if d.Stale {
		fmt.Fprintln(w, "\t(live lookup failed, showing last known values)")
	}
	return w.Flush()
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	records, err := a.Records.List(cmd.Context(), listLimit, listOffset)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No provisioned services found.")
		return nil
	}

	printRecords(out, records)
	return nil
}

func printRecords(out io.Writer, records []provision.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tKEY ID\tREGION\tUSAGE PLANS\tCREATED")
	fmt.Fprintln(w, "-------\t------\t------\t-----------\t-------")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.ServiceID, r.KeyID, r.Region, strings.Join(r.UsagePlans, ","), r.CreatedAt.Format(time.DateOnly))
	}
	w.Flush()
}

// resolve merges the flags over the configured callback defaults.
func (f endpointFlags) resolve(a *bootstrap.App, serviceID int64) (provision.Endpoint, provision.CreateParams) {
	d := a.CallbackDefaults()

	ep := f.credentials(d.Endpoint).WithRegion(f.region)
	if f.endpointURL != "" {
		ep.EndpointURL = f.endpointURL
	}

	p := provision.CreateParams{
		ServiceID:     serviceID,
		KeyNamePrefix: d.KeyNamePrefix,
		Region:        ep.Region,
		UsagePlans:    provision.ParseUsagePlans(d.UsagePlans),
	}
	if f.keyNamePrefix != "" {
		p.KeyNamePrefix = f.keyNamePrefix
	}
	if f.usagePlans != "" {
		p.UsagePlans = provision.ParseUsagePlans(f.usagePlans)
	}
	return ep, p
}

// checkCredentials rejects a key id without its secret and the reverse.
func (f endpointFlags) checkCredentials() error {
	if (f.accessKeyID == "") != (f.secretAccessKey == "") {
		return errors.New("--aws-key-id and --aws-key-secret must be given together")
	}
	return nil
}

// credentials replaces the configured pair only when both flags are set.
func (f endpointFlags) credentials(ep provision.Endpoint) provision.Endpoint {
	if f.accessKeyID != "" && f.secretAccessKey != "" {
		ep.AccessKeyID = f.accessKeyID
		ep.SecretAccessKey = f.secretAccessKey
	}
	return ep
}

func parseServiceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid service id %q", s)
	}
	return id, nil
}

// openApp builds the application with logs on stderr so results stay on stdout.
func openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	a, err := bootstrap.New(cmd.Context(), bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
		LogOutput:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	return a, nil
}
