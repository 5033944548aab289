package entity

import (
	"fmt"
	"strings"
)

// RaciDesignation is one of Responsible, Accountable, Consulted or Informed
type RaciDesignation string

const (
	RaciResponsible RaciDesignation = "R"
	RaciAccountable RaciDesignation = "A"
	RaciConsulted   RaciDesignation = "C"
	RaciInformed    RaciDesignation = "I"
)

// ParseRaciDesignation accepts the single letter or the full word, case-insensitively
func ParseRaciDesignation(raw string) (RaciDesignation, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "R", "RESPONSIBLE":
		return RaciResponsible, nil
	case "A", "ACCOUNTABLE":
		return RaciAccountable, nil
	case "C", "CONSULTED":
		return RaciConsulted, nil
	case "I", "INFORMED":
		return RaciInformed, nil
	}
	return "", fmt.Errorf("invalid RACI designation %q", raw)
}

// RaciTask maps roles to their designation for one task
type RaciTask struct {
	Name        string                       `json:"name"`
	Assignments map[RoleCode]RaciDesignation `json:"assignments"`
}

// RaciStage is an ordered group of tasks
type RaciStage struct {
	Name  string     `json:"name"`
	Tasks []RaciTask `json:"tasks"`
}

// RaciMatrix is the project's role vocabulary source. The lifecycle engine never mutates it.
type RaciMatrix struct {
	Stages []RaciStage `json:"stages,omitempty"`
}

// Roles enumerates every role referenced by the matrix in first-seen order
func (m RaciMatrix) Roles() []RoleCode {
	seen := make(map[RoleCode]bool)
	var roles []RoleCode
	for _, stage := range m.Stages {
		for _, task := range stage.Tasks {
			assigned := make(RoleSet, len(task.Assignments))
			for role := range task.Assignments {
				assigned[role] = struct{}{}
			}
			for _, role := range assigned.Sorted() {
				if !seen[role] {
					seen[role] = true
					roles = append(roles, role)
				}
			}
		}
	}
	return roles
}

// UnmarshalText validates designations decoded from policy documents
func (d *RaciDesignation) UnmarshalText(text []byte) error {
	parsed, err := ParseRaciDesignation(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
