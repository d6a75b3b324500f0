package diffusion

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestParseSeedRecords(t *testing.T) {
	cases := []struct {
		name    string
		records []string
		want    []Seed
	}{
		{
			name:    "single entry",
			records: []string{"node1@10.0.0.1:3000"},
			want:    []Seed{{NodeID: "node1", Address: "10.0.0.1:3000"}},
		},
		{
			name:    "comma separated",
			records: []string{"a@h1:1, b@h2:2"},
			want: []Seed{
				{NodeID: "a", Address: "h1:1"},
				{NodeID: "b", Address: "h2:2"},
			},
		},
		{
			name:    "duplicates collapse case insensitively",
			records: []string{"Node@Host:9", "node@host:9"},
			want:    []Seed{{NodeID: "Node", Address: "Host:9"}},
		},
		{
			name:    "malformed entries skipped",
			records: []string{"", "no-at-sign", "@host:1", "node@", "node@missing-port", "ok@h:5"},
			want:    []Seed{{NodeID: "ok", Address: "h:5"}},
		},
		{
			name:    "nothing usable",
			records: []string{",,", "garbage"},
			want:    nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseSeedRecords(tc.records)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

type fixtureResolver struct {
	records map[string][]string
}

func (r *fixtureResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	records, ok := r.records[name]
	if !ok {
		return nil, errors.New("no such domain")
	}
	return records, nil
}

func TestResolveSeedsSkipsFailingDomains(t *testing.T) {
	resolver := &fixtureResolver{records: map[string][]string{
		"seeds.one": {"a@h1:1,b@h2:2"},
		"seeds.two": {"b@h2:2,c@h3:3"},
	}}
	addrs := ResolveSeeds(context.Background(), resolver,
		[]string{"seeds.one", "seeds.broken", "seeds.two"})
	want := []string{"h1:1", "h2:2", "h3:3"}
	if !reflect.DeepEqual(addrs, want) {
		t.Fatalf("got %v, want %v", addrs, want)
	}
}
