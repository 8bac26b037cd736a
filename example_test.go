package denkmit

import (
	"context"
	"fmt"
)

func ExampleDB_Get() {
	ctx := context.Background()
	db, err := Create[string](ctx, Config{Persist: NewInMemoryStore(), Name: "fruit"}, StringCodec{})
	if err != nil {
		panic(err)
	}
	defer db.Close()
	db.Set(ctx, "apple", "red")
	db.Set(ctx, "banana", "yellow")
	v, err := db.Get(ctx, "banana")
	fmt.Println(v, err, db.Size())
	// Output:
	// yellow <nil> 2
}

func ExampleDB_Merge() {
	ctx := context.Background()
	store := NewInMemoryStore()
	a, err := Create[string](ctx, Config{Persist: store}, StringCodec{})
	if err != nil {
		panic(err)
	}
	defer a.Close()
	b, err := Open[string](ctx, a.Address(), Config{Persist: store}, StringCodec{})
	if err != nil {
		panic(err)
	}
	defer b.Close()

	a.Set(ctx, "apple", "red")
	b.Set(ctx, "banana", "yellow")
	head, err := a.CreateHead(ctx)
	if err != nil {
		panic(err)
	}
	if err := b.Merge(ctx, head); err != nil {
		panic(err)
	}
	b.Iter(ctx, func(key, value string) error {
		fmt.Println(key, value)
		return nil
	})
	// Output:
	// apple red
	// banana yellow
}

func ExamplePollard_Compare() {
	a, _ := NewPollard(1, nil)
	a.Append(SortedEntry{Link: ID("link-1"), Sort: []int64{1}, Key: "one"})
	a.Append(SortedEntry{Link: ID("link-2"), Sort: []int64{2}, Key: "two"})
	a.UpdateLayers(0)
	b, _ := NewPollard(1, nil)
	b.Append(SortedEntry{Link: ID("link-1"), Sort: []int64{1}, Key: "one"})
	b.UpdateLayers(0)

	equal, diff, _ := a.Compare(b)
	fmt.Println(equal)
	fmt.Println(diff[0][1].(SortedEntry).Key, IsEmpty(diff[1][1]))
	// Output:
	// false
	// two true
}

func ExampleForest_Shape() {
	ctx := context.Background()
	items := NewSortedItemsStore()
	for i := int64(0); i < 20; i++ {
		items.Set(i, fmt.Sprint(i), ID(fmt.Sprint("cid", i)), nil)
	}
	f, _ := NewForest(3, NewBlocks(NewInMemoryStore(), nil, nil))
	if err := f.Rebuild(ctx, items, RebuildAll); err != nil {
		panic(err)
	}
	fmt.Println(f.Shape(), f.Height())
	// Output:
	// [3 1] 2
}
