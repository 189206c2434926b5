// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "strings"

// Environment is a bit flag identifying which deployment stages a
// template version is published to. A stored version carries the OR of
// every stage it is live on; the running service carries exactly one.
type Environment int

const (
	EnvironmentDevelopment Environment = 1 << iota
	EnvironmentTest
	EnvironmentAcceptance
	EnvironmentLive
)

// ParseEnvironment maps a configuration string to its environment flag.
// Unknown values fall back to Live, the safest stage to resolve against.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return EnvironmentDevelopment
	case "test":
		return EnvironmentTest
	case "acceptance", "accept":
		return EnvironmentAcceptance
	case "live", "production", "prod":
		return EnvironmentLive
	default:
		return EnvironmentLive
	}
}

func (e Environment) String() string {
	switch e {
	case EnvironmentDevelopment:
		return "development"
	case EnvironmentTest:
		return "test"
	case EnvironmentAcceptance:
		return "acceptance"
	case EnvironmentLive:
		return "live"
	default:
		return "unknown"
	}
}

// Includes reports whether this published-environment mask covers the
// given stage.
func (e Environment) Includes(stage Environment) bool {
	return e&stage != 0
}
