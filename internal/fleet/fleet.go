// Package fleet loads a declarative list of monitored systems and their alert
// rules from YAML and registers them.
package fleet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
)

type File struct {
	Systems []System `yaml:"systems"`
}

type System struct {
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	Type        string `yaml:"type"`
	Environment string `yaml:"environment"`
	Interval    int    `yaml:"interval_seconds"`
	Container   string `yaml:"container,omitempty"`
	Rules       []Rule `yaml:"rules,omitempty"`
}

type Rule struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	Severity    string  `yaml:"severity"`
	Threshold   float64 `yaml:"threshold"`
	Consecutive int     `yaml:"consecutive_violations"`
}

// Registrar is what Apply needs from the monitor.
type Registrar interface {
	RegisterSystem(ctx context.Context, spec models.SystemSpec) (*models.MonitoredSystem, error)
	CreateRule(ctx context.Context, systemID string, spec models.RuleSpec) (*models.AlertRule, error)
}

type Result struct {
	Systems int
	Rules   int
	Skipped []string
}

func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	return Parse(bytes.NewReader(b))
}

// Parse decodes a fleet document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	f := &File{}
	if err := dec.Decode(f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fleet file: %w", err)
	}
	return f, nil
}

func (s System) Spec() (models.SystemSpec, error) {
	typ, err := models.ParseSystemType(s.Type)
	if err != nil {
		return models.SystemSpec{}, err
	}
	env, err := models.ParseEnvironment(s.Environment)
	if err != nil {
		return models.SystemSpec{}, err
	}
	return models.SystemSpec{
		Name:               s.Name,
		BaseURL:            s.BaseURL,
		Type:               typ,
		Environment:        env,
		CollectionInterval: s.Interval,
		Container:          s.Container,
	}, nil
}

func (r Rule) Spec() (models.RuleSpec, error) {
	typ, err := models.ParseRuleType(r.Type)
	if err != nil {
		return models.RuleSpec{}, err
	}
	sev, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return models.RuleSpec{}, err
	}
	return models.RuleSpec{
		Name:                  r.Name,
		Type:                  typ,
		Severity:              sev,
		Threshold:             r.Threshold,
		ConsecutiveViolations: r.Consecutive,
	}, nil
}

// Apply registers every system in f with its rules. Systems whose name is
// already registered are skipped along with their rules; any other error stops.
func Apply(ctx context.Context, reg Registrar, f *File, log *logger.Logger) (Result, error) {
	if log == nil {
		log = logger.NewNop()
	}
	var res Result
	for _, s := range f.Systems {
		spec, err := s.Spec()
		if err != nil {
			return res, fmt.Errorf("system %q: %w", s.Name, err)
		}
		sys, err := reg.RegisterSystem(ctx, spec)
		if apperrors.IsType(err, apperrors.ConflictError) {
			log.Info("system already registered, skipping", "system", s.Name)
			res.Skipped = append(res.Skipped, s.Name)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("system %q: %w", s.Name, err)
		}
		res.Systems++
		for _, r := range s.Rules {
			rs, err := r.Spec()
			if err != nil {
				return res, fmt.Errorf("rule %q on %q: %w", r.Name, s.Name, err)
			}
			if _, err := reg.CreateRule(ctx, sys.ID, rs); err != nil {
				return res, fmt.Errorf("rule %q on %q: %w", r.Name, s.Name, err)
			}
			res.Rules++
		}
		log.Info("system seeded", "system", s.Name, "id", sys.ID, "rules", len(s.Rules))
	}
	return res, nil
}
