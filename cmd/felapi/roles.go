package main

import (
	auth "github.com/felapi/fel-auth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type catalogRole struct {
	Name         string            `yaml:"name"`
	DisplayName  string            `yaml:"display_name"`
	Description  string            `yaml:"description,omitempty"`
	Capabilities map[string]string `yaml:"capabilities"`
}

func newRolesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Print the role and capability catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			registry := auth.DefaultRoleRegistry()
			if cfg.Auth.RolesFile != "" {
				if registry, err = auth.LoadRoleRegistryFile(cfg.Auth.RolesFile); err != nil {
					return err
				}
			}

			out := make([]catalogRole, 0, len(registry.RoleNames()))
			for _, def := range registry.AllRoles() {
				caps := make(map[string]string, len(def.Capabilities))
				for _, c := range def.Capabilities {
					caps[string(c)] = registry.DescriptionOf(c)
				}
				out = append(out, catalogRole{
					Name:         string(def.Name),
					DisplayName:  def.DisplayName,
					Description:  def.Description,
					Capabilities: caps,
				})
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]any{"roles": out})
		},
	}
}
