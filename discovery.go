package robot_interaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	"go.viam.com/rdk/services/generic"
)

var InteractionDiscoveryModel = resource.NewModel("devrel", "interaction", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		InteractionDiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newInteractionDiscovery,
		})
}

// DiscoveryConfig is the configuration for the discovery service
type DiscoveryConfig struct {
	Arms []string `json:"arms"`
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	if len(cfg.Arms) == 0 {
		return nil, nil, fmt.Errorf("%s: must specify at least one arm", path)
	}
	return cfg.Arms, nil, nil
}

// interactionDiscovery proposes an interaction handler for every configured arm
type interactionDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger logging.Logger

	arms map[string]arm.Arm
}

func newInteractionDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	arms := make(map[string]arm.Arm, len(cfg.Arms))
	for _, name := range cfg.Arms {
		res, err := deps.Lookup(resource.NewName(arm.API, name))
		if err != nil {
			return nil, fmt.Errorf("arm %q not available: %w", name, err)
		}
		a, ok := res.(arm.Arm)
		if !ok {
			return nil, fmt.Errorf("resource %q is not an arm", name)
		}
		arms[name] = a
	}

	return &interactionDiscovery{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		arms:   arms,
	}, nil
}

// DiscoverResources returns an interaction handler configuration for each arm
// whose kinematics can be read.
func (dis *interactionDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	names := make([]string, 0, len(dis.arms))
	for name := range dis.arms {
		names = append(names, name)
	}
	sort.Strings(names)

	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		moduleDataDir = "/tmp"
	}

	var configs []resource.Config
	for _, name := range names {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return configs, ctx.Err()
		default:
		}

		model, err := dis.arms[name].Kinematics(ctx)
		if err != nil {
			dis.logger.Debugf("Skipping arm %s, no kinematics: %v", name, err)
			continue
		}
		offsetsFile := findOffsetsFile(moduleDataDir, name, dis.logger)
		configs = append(configs, handlerConfig(name, len(model.DoF()), offsetsFile))
	}

	if len(configs) == 0 {
		dis.logger.Info("No interaction handlers discovered")
	} else {
		dis.logger.Infof("Discovered %d interaction handler configurations", len(configs))
	}
	return configs, nil
}

// handlerConfig maps every joint of the arm onto a revolute joint control.
func handlerConfig(armName string, dof int, offsetsFile string) resource.Config {
	joints := make(map[string]interface{}, dof)
	for i := 0; i < dof; i++ {
		joints[fmt.Sprintf("joint_%d", i)] = map[string]interface{}{"index": i}
	}
	attrs := map[string]interface{}{
		"arm":    armName,
		"joints": joints,
	}
	if offsetsFile != "" {
		attrs["offsets_file"] = offsetsFile
	}
	return resource.Config{
		Name:       "interaction-" + sanitizeName(armName),
		API:        generic.API,
		Model:      InteractionHandlerModel,
		Attributes: attrs,
	}
}

// sanitizeName keeps resource names to letters, digits, '-' and '_'.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}

// findOffsetsFile searches moduleDataDir for an arm-specific offsets file, then
// the shared default. Returns just the filename or empty string if not found.
func findOffsetsFile(moduleDataDir, armName string, logger logging.Logger) string {
	armSpecific := armName + "_offsets.yaml"
	if _, err := os.Stat(filepath.Join(moduleDataDir, armSpecific)); err == nil {
		logger.Debugf("Found arm-specific offsets file: %s", armSpecific)
		return armSpecific
	}

	if _, err := os.Stat(filepath.Join(moduleDataDir, "interaction_offsets.yaml")); err == nil {
		logger.Debug("Found default offsets file: interaction_offsets.yaml")
		return "interaction_offsets.yaml"
	}

	logger.Debug("No offsets file found")
	return ""
}
