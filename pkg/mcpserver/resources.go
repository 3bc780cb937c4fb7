package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scanguard/scanguard/pkg/defaults"
)

const (
	uriVersion = defaults.ToolName + "://version"
	uriCatalog = defaults.ToolName + "://catalog"
	uriPolicy  = defaults.ToolName + "://policy"
)

// registerResources adds the read-only reference documents.
func (s *Server) registerResources() {
	s.addJSONResource(uriVersion, "Scanguard Version",
		"Server version and tool inventory.", s.versionInfo)
	s.addJSONResource(uriCatalog, "Scanner Catalog",
		"Every scanner with its allowed flags, required flags and limits.", s.catalogInfo)
	s.addJSONResource(uriPolicy, "Target Policy",
		"Authorized networks, lab hostname suffix, range ceiling and denied argument characters.", s.policyInfo)
}

func (s *Server) addJSONResource(uri, name, description string, build func() any) {
	s.mcp.AddResource(
		&mcp.Resource{
			URI:         uri,
			Name:        name,
			Description: description,
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			data, err := json.MarshalIndent(build(), "", "  ")
			if err != nil {
				return nil, fmt.Errorf("marshaling %s: %w", uri, err)
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: uri, MIMEType: "application/json", Text: string(data)},
				},
			}, nil
		},
	)
}

func (s *Server) versionInfo() any {
	names := s.exec.Catalog().Names()
	return map[string]any{
		"name":    defaults.ToolName,
		"version": defaults.Version,
		"tools":   append(names, toolListTools, toolToolStatus),
	}
}

func (s *Server) catalogInfo() any {
	return catalogEntries(s.exec.Catalog())
}

func (s *Server) policyInfo() any {
	v := s.exec.Validator()
	networks := make([]string, 0, len(v.Networks()))
	for _, p := range v.Networks() {
		networks = append(networks, p.String())
	}
	return map[string]any{
		"authorized_networks": networks,
		"lab_suffix":          v.LabSuffix(),
		"max_range_addresses": v.MaxRangeAddresses(),
		"denied_characters":   []string{";", "|", "&", "`", "$", "<", ">", `\n`, `\r`, `\0`},
		"octet_shorthand":     "rejected",
	}
}
