package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestPaginator(t *testing.T) {
	pages := map[string]Page[int]{
		"":  {Items: []int{1, 2}, Cursor: "b"},
		"b": {Items: []int{3}, Cursor: "c"},
		"c": {Items: []int{4, 5}},
	}
	fetch := func(ctx context.Context, cursor string) (Page[int], error) {
		p, ok := pages[cursor]
		if !ok {
			return Page[int]{}, fmt.Errorf("unknown cursor %q", cursor)
		}
		return p, nil
	}

	t.Run("next walks pages", func(t *testing.T) {
		p := NewPaginator(fetch)
		var sizes []int
		for p.HasMore() {
			items, err := p.Next(context.Background())
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			sizes = append(sizes, len(items))
		}
		if fmt.Sprint(sizes) != "[2 1 2]" {
			t.Errorf("page sizes = %v", sizes)
		}

		items, err := p.Next(context.Background())
		if items != nil || err != nil {
			t.Errorf("Next after end = %v, %v", items, err)
		}
	})

	t.Run("all", func(t *testing.T) {
		all, err := NewPaginator(fetch).All(context.Background())
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if fmt.Sprint(all) != "[1 2 3 4 5]" {
			t.Errorf("all = %v", all)
		}
	})

	t.Run("error stops", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		p := NewPaginator(func(ctx context.Context, cursor string) (Page[int], error) {
			calls++
			if cursor == "b" {
				return Page[int]{}, boom
			}
			return Page[int]{Items: []int{1}, Cursor: "b"}, nil
		})
		if _, err := p.All(context.Background()); !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("repeated cursor ends the walk", func(t *testing.T) {
		calls := 0
		p := NewPaginator(func(ctx context.Context, cursor string) (Page[int], error) {
			calls++
			return Page[int]{Items: []int{calls}, Cursor: "same"}, nil
		})
		all, err := p.All(context.Background())
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if calls != 2 || len(all) != 2 {
			t.Errorf("calls = %d, items = %v", calls, all)
		}
	})
}

func TestPage_HasMore(t *testing.T) {
	if (Page[string]{}).HasMore() {
		t.Error("empty cursor should not have more")
	}
	if !(Page[string]{Cursor: "x"}).HasMore() {
		t.Error("cursor should have more")
	}
}
