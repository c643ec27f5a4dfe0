package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/engine"
)

// TargetFile is the YAML description of a listing target. Every field is
// optional; set fields override the environment.
//
//	base_url: https://shop.example.com/search?q=lamps
//	css_selector: ".product-tile"
//	required_keys: [title, price, reviews]
//	max_pages: 20
//	schema:
//	  name: Lamp
//	  fields:
//	    - {name: title, type: string}
//	    - {name: price, type: string}
//	    - {name: reviews, type: integer}
type TargetFile struct {
	BaseURL         string          `yaml:"base_url"`
	PageParam       string          `yaml:"page_param"`
	Selector        string          `yaml:"css_selector"`
	RequiredKeys    []string        `yaml:"required_keys"`
	IdentityField   string          `yaml:"identity_field"`
	Instruction     string          `yaml:"instruction"`
	Schema          *crawl.Schema   `yaml:"schema"`
	NoResultsMarker string          `yaml:"no_results_marker"`
	MaxPages        *int            `yaml:"max_pages"`
	MaxEmptyPages   *int            `yaml:"max_empty_pages"`
	StartPage       *int            `yaml:"start_page"`
	ExtractMode     string          `yaml:"extract_mode"`
	InputFormat     string          `yaml:"input_format"`
	WaitFor         string          `yaml:"wait_for"`
	Actions         []engine.Action `yaml:"actions"`
	Output          string          `yaml:"output"`
}

// LoadTargetFile reads and decodes a target file. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadTargetFile(path string) (*TargetFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open target file: %w", err)
	}
	defer f.Close()

	var tf TargetFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("config: decode target file %s: %w", path, err)
	}
	if tf.Schema != nil {
		if err := tf.Schema.Validate(); err != nil {
			return nil, fmt.Errorf("config: target file %s: %w", path, err)
		}
	}
	return &tf, nil
}

// ApplyTarget overlays the set fields of tf onto c.
func (c *Config) ApplyTarget(tf *TargetFile) {
	cc := &c.Crawl
	setString(&cc.BaseURL, tf.BaseURL)
	setString(&cc.PageParam, tf.PageParam)
	setString(&cc.Selector, tf.Selector)
	setString(&cc.IdentityField, tf.IdentityField)
	setString(&cc.Instruction, tf.Instruction)
	setString(&cc.NoResultsMarker, tf.NoResultsMarker)
	setString(&cc.ExtractMode, tf.ExtractMode)
	setString(&cc.InputFormat, tf.InputFormat)
	setString(&cc.WaitFor, tf.WaitFor)
	setString(&c.Export.Output, tf.Output)

	if tf.RequiredKeys != nil {
		cc.RequiredKeys = tf.RequiredKeys
	}
	if tf.Schema != nil {
		cc.Schema = *tf.Schema
	}
	if tf.MaxPages != nil {
		cc.MaxPages = *tf.MaxPages
	}
	if tf.MaxEmptyPages != nil {
		cc.MaxEmptyPages = *tf.MaxEmptyPages
	}
	if tf.StartPage != nil {
		cc.StartPage = *tf.StartPage
	}
	if tf.Actions != nil {
		cc.Actions = tf.Actions
	}
}

// LoadTarget applies c.Crawl.TargetFile when one is configured.
func (c *Config) LoadTarget() error {
	if c.Crawl.TargetFile == "" {
		return nil
	}
	tf, err := LoadTargetFile(c.Crawl.TargetFile)
	if err != nil {
		return err
	}
	c.ApplyTarget(tf)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
