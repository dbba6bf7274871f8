package csv

import (
	"context"
	"testing"
)

type staticLoader map[string]string

func (s staticLoader) GetFileText(_ context.Context, source string) ([]byte, error) {
	return []byte(s[source]), nil
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "rows become pairs",
			content: "model,budget\ncohere,4000\nmistral,15000\n",
			want:    "model: cohere; budget: 4000\nmodel: mistral; budget: 15000\n",
		},
		{
			name:    "quoted fields and empty cells",
			content: "name,notes,owner\n\"Tesla, Inc.\",,\"said \"\"hi\"\"\"\n",
			want:    "name: Tesla, Inc.; owner: said \"hi\"\n",
		},
		{
			name:    "extra columns without header",
			content: "a\n1,2\n",
			want:    "a: 1; column 2: 2\n",
		},
		{
			name:    "blank lines skipped",
			content: "\n,,\nk,v\n\nx,y\n",
			want:    "k: x; v: y\n",
		},
		{
			name:    "header only",
			content: "k,v\n",
			want:    "k, v\n",
		},
		{
			name:    "empty",
			content: "",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCSV([]byte(tc.content))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCSV() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("ParseCSV() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCSVFileLoader_GetFileText(t *testing.T) {
	l := NewCSVFileLoader(staticLoader{"facts.csv": "subject,object\nsky,blue\n"})
	got, err := l.GetFileText(context.Background(), "facts.csv")
	if err != nil {
		t.Fatalf("GetFileText() error = %v", err)
	}
	if string(got) != "subject: sky; object: blue\n" {
		t.Fatalf("GetFileText() = %q", got)
	}
}
