// Package loader reads process definitions from YAML or JSON files.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/engine"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

const (
	yamlExt = ".yaml"
	ymlExt  = ".yml"
	jsonExt = ".json"
)

// Supported reports whether path has a definition file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case yamlExt, ymlExt, jsonExt:
		return true
	default:
		return false
	}
}

// LoadFile reads one definition file. The format follows the extension.
func LoadFile(path string) (*schema.ProcessDefinition, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("unsupported definition file %s: want .yaml, .yml or .json", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}
	var def *schema.ProcessDefinition
	if strings.EqualFold(filepath.Ext(path), jsonExt) {
		def, err = ParseJSON(data)
	} else {
		def, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir reads every definition file directly inside dir, ordered by file name.
// Subdirectories and other files are ignored.
func LoadDir(dir string) ([]*schema.ProcessDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var defs []*schema.ProcessDefinition
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseJSON decodes a definition, rejecting unknown fields.
func ParseJSON(data []byte) (*schema.ProcessDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var def schema.ProcessDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "invalid definition JSON").WithCause(err)
	}
	return &def, nil
}

// ParseYAML decodes a YAML definition. Keys use the same names as the JSON form.
func ParseYAML(data []byte) (*schema.ProcessDefinition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "invalid definition YAML").WithCause(err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, schema.NewError(schema.ErrCodeDefinition, "definition YAML must be a mapping")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "definition YAML is not representable as JSON").WithCause(err)
	}
	return ParseJSON(raw)
}

// Registrar is the part of the engine Seed needs.
type Registrar interface {
	LatestDefinition(ctx context.Context, name string) (*schema.ProcessDefinition, error)
	DefineProcess(ctx context.Context, def *schema.ProcessDefinition, actorID string) (*engine.DefineResult, error)
}

// SeedResult reports what Seed did per definition name.
type SeedResult struct {
	Registered []string `json:"registered"`
	Unchanged  []string `json:"unchanged"`
}

// Seed registers every definition in dir whose content differs from the
// latest stored version of the same name. Running it twice is a no-op.
func Seed(ctx context.Context, reg Registrar, dir, actorID string, logger *slog.Logger) (*SeedResult, error) {
	logger = logging.OrDefault(logger)
	defs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}

	res := &SeedResult{}
	for _, def := range defs {
		latest, err := reg.LatestDefinition(ctx, def.Name)
		switch {
		case schema.HasCode(err, schema.ErrCodeNotFound):
		case err != nil:
			return res, fmt.Errorf("look up %q: %w", def.Name, err)
		case SameContent(latest, def):
			res.Unchanged = append(res.Unchanged, def.Name)
			continue
		}

		out, err := reg.DefineProcess(ctx, def, actorID)
		if err != nil {
			return res, fmt.Errorf("register %q: %w", def.Name, err)
		}
		res.Registered = append(res.Registered, def.Name)
		logger.Info("definition registered",
			slog.String("name", out.Definition.Name),
			slog.Int("version", out.Definition.Version),
			slog.String("definition_id", out.Definition.ID),
			slog.Int("warnings", len(out.Warnings)),
		)
	}
	return res, nil
}

// SameContent compares the authored parts of two definitions, ignoring
// registry-assigned fields.
func SameContent(a, b *schema.ProcessDefinition) bool {
	return bytes.Equal(contentKey(a), contentKey(b))
}

func contentKey(def *schema.ProcessDefinition) []byte {
	c := *def
	c.ID, c.Version, c.CreatedBy, c.CreatedAt = "", 0, "", time.Time{}
	if len(c.Transitions) == 0 {
		c.Transitions = nil
	}
	if len(c.Metadata) == 0 {
		c.Metadata = nil
	}
	if len(c.VariablesSchema) > 0 {
		var v any
		if json.Unmarshal(c.VariablesSchema, &v) == nil {
			c.VariablesSchema, _ = json.Marshal(v)
		}
	}
	raw, _ := json.Marshal(c)
	return raw
}
