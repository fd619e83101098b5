package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Document — сохраняемый/передаваемый документ: workflows, flows и templates.
//
// Flows и Templates верхнего уровня дополняют те, что вложены в Workflow.
type Document struct {
	Workflows map[string]*Workflow `json:"workflows,omitempty"`
	Flows     map[string]*Flow     `json:"flows,omitempty"`
	Templates map[string]*Template `json:"templates,omitempty"`
}

// Format — формат сериализации документа.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath определяет формат по расширению файла.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeDocument разбирает документ в формате JSON или YAML.
//
// YAML сначала приводится к JSON, чтобы использовать одни и те же
// json-теги и кодек Element.
func DecodeDocument(data []byte, format Format) (*Document, error) {
	data, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &doc, nil
}

// DecodeVariables разбирает список переменных в формате JSON или YAML.
func DecodeVariables(data []byte, format Format) ([]*Variable, error) {
	data, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	var vars []*Variable
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return vars, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	if format != FormatYAML {
		return data, nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	converted, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return converted, nil
}

// LoadDocumentFile читает документ с диска.
func LoadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeDocument(data, FormatFromPath(path))
}

// SnakeCase приводит отображаемое имя к форме для ссылок в выражениях:
// "Input Table" → "input_table".
func SnakeCase(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}
