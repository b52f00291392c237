/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	pkgconfig "jinr.ru/greenlab/go-mxfe/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	if _, err := run(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := run(t, "--config", path, "config", "init"); err == nil {
		t.Fatal("second init without --overwrite must fail")
	}
	out, err := run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "name: "+pkgconfig.DefaultDeviceName) {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestBringUpReport(t *testing.T) {
	dir := t.TempDir()
	cfg := pkgconfig.NewDefaultConfig()
	cfg.SetPath(filepath.Join(dir, "config"))
	cfg.DBPath = filepath.Join(dir, "state.db")
	cfg.PollIntervalMs = 1
	if err := cfg.Persist(false); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfg.Path(), "bringup", "--transport", "sim")
	if err != nil {
		t.Fatalf("bringup: %v\n%s", err, out)
	}
	for _, want := range []string{"attempts: 1", "initialized: true", "name: tx0", "up: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("report misses %q:\n%s", want, out)
		}
	}
}
