package lbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) LocationCounts(ctx context.Context, kind Kind) (counts.Counts, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown count kind %q", kind)
	}
	return s.repo.LocationCounts(ctx, kind)
}

// ModuleDependencies reports each required module by display name.
func (s *Service) ModuleDependencies(ctx context.Context) (map[string]ModuleStatus, error) {
	mods, err := s.repo.RequiredModules(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ModuleStatus, len(mods))
	for _, m := range mods {
		status := StatusNotInstalled
		if m.Started {
			status = StatusInstalled
		}
		out[m.Name] = ModuleStatus{RequiredVersion: m.RequiredVersion, Status: status}
	}
	return out, nil
}

// AccessSettings returns the current on-off switches. Unset switches are
// omitted.
func (s *Service) AccessSettings(ctx context.Context) (map[string]string, error) {
	return s.repo.GlobalProperties(ctx, AccessProperties)
}

// UpdateAccessSettings stores every known switch present and non-blank in
// body and ignores everything else. It returns the switches it wrote.
func (s *Service) UpdateAccessSettings(ctx context.Context, body map[string]string) ([]string, error) {
	var written []string
	for _, prop := range AccessProperties {
		value, ok := body[prop]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := s.repo.SetGlobalProperty(ctx, prop, value); err != nil {
			return written, err
		}
		written = append(written, prop)
	}
	return written, nil
}
