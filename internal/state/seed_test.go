package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	content := `
root:
  id: epic-1
  title: Build the parser
tasks:
  - id: lexer
    title: Write the lexer
    group: parsing
    priority: 0
    timeout: 90s
  - id: parser
    title: Write the parser
    depends_on: [lexer]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	g, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile() error = %v", err)
	}
	if g.Root.ID != "epic-1" || len(g.Tasks) != 2 {
		t.Fatalf("seed = %+v", g)
	}
	if g.Tasks[0].Priority == nil || *g.Tasks[0].Priority != 0 {
		t.Errorf("explicit priority 0 should be kept, got %v", g.Tasks[0].Priority)
	}
	if g.Tasks[1].DependsOn[0] != "lexer" {
		t.Errorf("depends_on = %v", g.Tasks[1].DependsOn)
	}
}

func TestSeedGraph_Validate(t *testing.T) {
	tests := []struct {
		name    string
		graph   SeedGraph
		wantErr string
	}{
		{
			name:    "missing root",
			graph:   SeedGraph{},
			wantErr: "root id",
		},
		{
			name: "duplicate id",
			graph: SeedGraph{Root: SeedRoot{ID: "r"}, Tasks: []SeedTask{
				{ID: "a", Title: "A"}, {ID: "a", Title: "A again"},
			}},
			wantErr: "duplicate",
		},
		{
			name: "unknown dependency",
			graph: SeedGraph{Root: SeedRoot{ID: "r"}, Tasks: []SeedTask{
				{ID: "a", Title: "A", DependsOn: []string{"b"}},
			}},
			wantErr: "unknown dependency",
		},
		{
			name: "cycle",
			graph: SeedGraph{Root: SeedRoot{ID: "r"}, Tasks: []SeedTask{
				{ID: "a", Title: "A", DependsOn: []string{"b"}},
				{ID: "b", Title: "B", DependsOn: []string{"a"}},
			}},
			wantErr: "circular",
		},
		{
			name: "bad timeout",
			graph: SeedGraph{Root: SeedRoot{ID: "r"}, Tasks: []SeedTask{
				{ID: "a", Title: "A", Timeout: "soon"},
			}},
			wantErr: "timeout",
		},
		{
			name: "derived blocked is not storable",
			graph: SeedGraph{Root: SeedRoot{ID: "r"}, Tasks: []SeedTask{
				{ID: "a", Title: "A", Status: "blocked"},
			}},
			wantErr: "invalid status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.graph.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
