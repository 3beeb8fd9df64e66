package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChainStep names the approver holding one position of the default chain.
type ChainStep struct {
	Sequence int    `yaml:"sequence"`
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
}

// WorkflowChain is the default approver chain assigned to new submissions of a form.
type WorkflowChain struct {
	Form  string      `yaml:"form"`
	Steps []ChainStep `yaml:"steps"`
}

// DefaultChain is used when no workflow file exists: reviewer, sales director, CEO, finance.
func DefaultChain() WorkflowChain {
	return WorkflowChain{
		Form: "customer-rejection",
		Steps: []ChainStep{
			{Sequence: 1, Username: "nra", Role: "reviewer"},
			{Sequence: 2, Username: "ras", Role: "sales_director"},
			{Sequence: 3, Username: "hoz", Role: "ceo"},
			{Sequence: 4, Username: "mda", Role: "finance"},
		},
	}
}

// LoadWorkflowChain reads the chain from path. A missing file yields DefaultChain.
func LoadWorkflowChain(path string) (WorkflowChain, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultChain(), nil
	}
	if err != nil {
		return WorkflowChain{}, fmt.Errorf("read workflow file: %w", err)
	}

	var chain WorkflowChain
	if err := yaml.Unmarshal(data, &chain); err != nil {
		return WorkflowChain{}, fmt.Errorf("parse workflow file: %w", err)
	}
	if chain.Form == "" {
		return WorkflowChain{}, errors.New("workflow file: form is required")
	}
	return chain, nil
}
