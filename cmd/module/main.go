package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	"go.viam.com/rdk/services/generic"
	interaction "robot_interaction"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: interaction.InteractionHandlerModel},
		resource.APIModel{API: discovery.API, Model: interaction.InteractionDiscoveryModel},
	)
}
