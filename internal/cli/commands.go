package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splax/unhazzle/internal/domain"
	apiclient "github.com/splax/unhazzle/pkg/api/client"
)

func (a *app) loginCommand() *cobra.Command {
	var name, github string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session and store its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				prompted, err := a.prompt("Name: ")
				if err != nil {
					return err
				}
				name = prompted
			}
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			sess, err := cli.SignIn(ctx, name, github)
			if err != nil {
				return err
			}
			a.cfg.Set(keyToken, sess.Token)
			if err := a.saveConfig(); err != nil {
				return err
			}
			a.showSuccess(fmt.Sprintf("signed in as %s (session %s)", strings.TrimSpace(name), sess.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&github, "github", "", "GitHub username")
	return cmd
}

// prompt reads one line from stdin. It refuses when stdin is not interactive.
func (a *app) prompt(label string) (string, error) {
	if f, ok := a.in.(*os.File); ok && !isTerminal(f) {
		return "", errors.New("--name is required when stdin is not a terminal")
	}
	fmt.Fprint(a.out, label)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Close the session and forget its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, tok, err := a.authed()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if err := cli.SignOut(ctx, tok); err != nil {
				var apiErr apiclient.APIError
				if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
					return err
				}
			}
			a.cfg.Set(keyToken, "")
			if err := a.saveConfig(); err != nil {
				return err
			}
			a.showSuccess("signed out")
			return nil
		},
	}
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the project and its environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, tok, err := a.authed()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			st, err := cli.State(ctx, tok)
			if err != nil {
				return err
			}
			if st.User != nil {
				a.showInfo("user " + st.User.Name)
			}
			if st.Project == nil {
				a.showInfo(fmt.Sprintf("no project yet, %d container(s) drafted", len(st.Containers)))
				return nil
			}
			fmt.Fprintln(a.out, a.render(boldStyle, st.Project.Name)+" "+a.render(dimStyle, st.Project.Slug))
			a.renderEnvironments(*st.Project, st.ActiveEnvironmentID)
			return nil
		},
	}
}

func (a *app) estimateCommand() *cobra.Command {
	var (
		cpu, memory, traffic, environment string
		minReplicas, maxReplicas, volume  int
		database, cache                   string
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a configuration or an existing environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if environment != "" {
				cli, tok, err := a.authed()
				if err != nil {
					return err
				}
				cost, err := cli.EnvironmentEstimate(ctx, tok, environment)
				if err != nil {
					return err
				}
				a.renderCost(cost)
				return nil
			}
			cli, err := a.client()
			if err != nil {
				return err
			}
			req := apiclient.EstimateRequest{
				Resources: domain.ResourceConfig{
					Replicas: domain.Replicas{Min: minReplicas, Max: maxReplicas},
					CPU:      cpu,
					Memory:   memory,
				},
				Traffic: domain.Traffic(traffic),
			}
			if database != "" && database != string(domain.DatabaseNone) {
				req.Resources.Database = &domain.DatabaseConfig{
					Engine:      domain.DatabaseEngine(database),
					CPU:         "1 vCPU",
					Memory:      "2GB",
					StorageGB:   25,
					Replication: domain.ReplicationSingle,
				}
			}
			if cache != "" && cache != string(domain.CacheNone) {
				req.Resources.Cache = &domain.CacheConfig{Engine: domain.CacheEngine(cache), Memory: "1GB"}
			}
			if volume > 0 {
				req.Volume = &domain.Volume{SizeGB: volume}
			}
			cost, err := cli.Estimate(ctx, req)
			if err != nil {
				return err
			}
			a.renderCost(cost)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&environment, "environment", "", "price an existing environment instead")
	f.StringVar(&cpu, "cpu", "1 vCPU", "CPU per replica")
	f.StringVar(&memory, "memory", "2GB", "memory per replica")
	f.IntVar(&minReplicas, "min", 2, "minimum replicas")
	f.IntVar(&maxReplicas, "max", 4, "maximum replicas")
	f.StringVar(&traffic, "traffic", string(domain.TrafficSteady), "traffic pattern: low, steady, burst or high")
	f.StringVar(&database, "database", "", "database engine to include")
	f.StringVar(&cache, "cache", "", "cache engine to include")
	f.IntVar(&volume, "volume", 0, "persistent volume size in GB")
	return cmd
}

func (a *app) manifestCommand() *cobra.Command {
	var environment, output string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Export an environment as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, tok, err := a.authed()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			body, err := cli.Manifest(ctx, tok, environment)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = a.out.Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return err
			}
			a.showSuccess("manifest written to " + output)
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "environment", "", "environment id (default: active)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func (a *app) deployCommand() *cobra.Command {
	var project, environment string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the drafted stack or one environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, tok, err := a.authed()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if environment != "" {
				env, err := cli.DeployEnvironment(ctx, tok, environment)
				if err != nil {
					return err
				}
				a.showSuccess(fmt.Sprintf("%s is %s at %s", env.Name, env.Status, env.BaseDomain))
				return nil
			}
			p, err := cli.Deploy(ctx, tok, project)
			if err != nil {
				return err
			}
			a.showSuccess("deployed project " + p.Name)
			a.renderEnvironments(p, "")
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name used on first deploy")
	cmd.Flags().StringVar(&environment, "environment", "", "deploy only this environment id")
	return cmd
}

func (a *app) envCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environments",
	}
	var typ string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, tok, err := a.authed()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			env, err := cli.CreateEnvironment(ctx, tok, apiclient.CreateEnvironmentInput{Name: args[0], Type: domain.EnvironmentType(typ)})
			if err != nil {
				return err
			}
			a.showSuccess(fmt.Sprintf("created %s (%s) at %s", env.Name, env.ID, env.BaseDomain))
			return nil
		},
	}
	create.Flags().StringVar(&typ, "type", string(domain.EnvironmentStandard), "standard, non-production, production or pull-request")

	var target string
	promote := &cobra.Command{
		Use:   "promote SOURCE_ID",
		Short: "Copy an environment's configuration onto another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return errors.New("--to is required")
			}
			return a.envAction("promoted", func(cli *apiclient.Client, tok string) (domain.Environment, error) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				return cli.PromoteEnvironment(ctx, tok, args[0], target)
			})
		},
	}
	promote.Flags().StringVar(&target, "to", "", "target environment id")

	cmd.AddCommand(
		create,
		a.simpleEnvCommand("pause", "paused", (*apiclient.Client).PauseEnvironment),
		a.simpleEnvCommand("resume", "resumed", (*apiclient.Client).ResumeEnvironment),
		promote,
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete an environment",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cli, tok, err := a.authed()
				if err != nil {
					return err
				}
				ctx, cancel := requestContext(cmd)
				defer cancel()
				if err := cli.DeleteEnvironment(ctx, tok, args[0]); err != nil {
					return err
				}
				a.showSuccess("deleted " + args[0])
				return nil
			},
		},
	)
	return cmd
}

type envCall func(c *apiclient.Client, ctx context.Context, token, id string) (domain.Environment, error)

func (a *app) simpleEnvCommand(verb, past string, call envCall) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " ID",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.envAction(past, func(cli *apiclient.Client, tok string) (domain.Environment, error) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				return call(cli, ctx, tok, args[0])
			})
		},
	}
}

func (a *app) envAction(past string, call func(*apiclient.Client, string) (domain.Environment, error)) error {
	cli, tok, err := a.authed()
	if err != nil {
		return err
	}
	env, err := call(cli, tok)
	if err != nil {
		return err
	}
	a.showSuccess(fmt.Sprintf("%s %s, now %s", past, env.Name, env.Status))
	return nil
}
