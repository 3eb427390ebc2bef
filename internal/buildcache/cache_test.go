package buildcache

import (
	"crypto/sha256"
	"testing"

	"cilforge/internal/diag"
)

func TestKeySeparatesParts(t *testing.T) {
	content := sha256.Sum256([]byte("tree"))
	a := Key(content, "pe", "ab")
	b := Key(content, "pe", "a", "b")
	c := Key(content, "pe", "ab")
	if a == b {
		t.Error("part boundaries do not change the key")
	}
	if a != c {
		t.Error("key is not deterministic")
	}
	if a.IsZero() || len(a.String()) != 64 {
		t.Errorf("key = %s", a)
	}
}

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := Key(sha256.Sum256([]byte("x")), "pe")
	if _, ok, err := c.Get(key); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	bag := diag.NewBag(0)
	bag.Add(diag.NewWarning(diag.EmitUnresolvedMethod, diag.At("app", "main").Stmt(1), "unresolved call f"))
	in := &Payload{Unit: "app", Backend: "pe", Image: []byte{'M', 'Z'}, Diagnostics: Record(bag.Items())}
	if err := c.Put(key, in); err != nil {
		t.Fatal(err)
	}
	out, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(out.Image) != "MZ" || out.Unit != "app" || out.Created == 0 {
		t.Errorf("payload = %+v", out)
	}

	replayed := diag.NewBag(0)
	Replay(diag.BagReporter{Bag: replayed}, out.Diagnostics)
	items := replayed.Items()
	if len(items) != 1 || items[0].Code != diag.EmitUnresolvedMethod || items[0].Primary.Statement != 1 {
		t.Errorf("replayed = %+v", items)
	}

	if err := c.DropAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Error("entry survived DropAll")
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	if err := c.Put(Digest{}, &Payload{}); err != nil {
		t.Error(err)
	}
	if _, ok, err := c.Get(Digest{}); ok || err != nil {
		t.Errorf("nil Get: ok=%v err=%v", ok, err)
	}
}
