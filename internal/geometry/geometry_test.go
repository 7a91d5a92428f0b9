package geometry

import (
	"errors"
	"testing"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

func TestResolve(t *testing.T) {
	presets := DefaultPresets()
	orig := Size{Width: 400, Height: 200}

	tests := []struct {
		name string
		req  Request
		want Size
	}{
		{"width only locked", Request{Width: 100, LockAspect: true}, Size{100, 50}},
		{"height only locked", Request{Height: 50, LockAspect: true}, Size{100, 50}},
		{"both locked keeps width", Request{Width: 200, Height: 999, LockAspect: true}, Size{200, 100}},
		{"both unlocked used as supplied", Request{Width: 30, Height: 70}, Size{30, 70}},
		{"width only unlocked keeps source height", Request{Width: 30}, Size{30, 200}},
		{"preset overrides dimensions", Request{Width: 10, Height: 10, Preset: "youtube_thumbnail"}, Size{1280, 720}},
		{"preset ignores aspect lock", Request{Preset: "instagram_story", LockAspect: true}, Size{1080, 1920}},
		{"unknown preset falls through", Request{Width: 40, Preset: "nope"}, Size{40, 200}},
		{"compress only keeps source", Request{CompressOnly: true}, Size{400, 200}},
		{"compress only ignores explicit size", Request{Width: 50, Height: 60, CompressOnly: true}, Size{400, 200}},
		{"compress only wins over preset", Request{Preset: "instagram_story", CompressOnly: true}, Size{400, 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(orig, tt.req, presets)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolveTruncatesDerivedDimension(t *testing.T) {
	got, err := Resolve(Size{Width: 3, Height: 2}, Request{Width: 100, LockAspect: true}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// 100 * 2 / 3 = 66.67
	if got.Height != 66 {
		t.Fatalf("expected height 66, got %d", got.Height)
	}

	tiny, err := Resolve(Size{Width: 1000, Height: 1}, Request{Width: 10, LockAspect: true}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tiny.Height != 1 {
		t.Fatalf("expected derived height clamped to 1, got %d", tiny.Height)
	}
}

func TestResolveRequiresDimensions(t *testing.T) {
	_, err := Resolve(Size{Width: 10, Height: 10}, Request{LockAspect: true}, DefaultPresets())
	if !errors.Is(err, domain.ErrInvalidDimensions) {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPresetsMerge(t *testing.T) {
	merged := DefaultPresets().Merge(Presets{
		"Square_Post": {Width: 1080, Height: 1080},
		"broken":      {Width: 0, Height: 10},
	})

	if size, ok := merged.Lookup("square_post"); !ok || size != (Size{1080, 1080}) {
		t.Fatalf("expected square_post preset, got %v ok=%v", size, ok)
	}
	if _, ok := merged.Lookup("broken"); ok {
		t.Fatal("expected invalid preset to be dropped")
	}
	if _, ok := merged.Lookup("instagram_story"); !ok {
		t.Fatal("expected built-in presets to survive merge")
	}
}

func TestCheck(t *testing.T) {
	presets := DefaultPresets()
	if err := Check(Request{}, presets); !errors.Is(err, domain.ErrInvalidDimensions) {
		t.Fatalf("expected ErrInvalidDimensions for empty request, got %v", err)
	}
	for _, req := range []Request{{Width: 5}, {Preset: "instagram_story"}, {CompressOnly: true}} {
		if err := Check(req, presets); err != nil {
			t.Fatalf("expected %+v to pass, got %v", req, err)
		}
	}
}
