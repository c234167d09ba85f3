package app

import (
    "bufio"
    "errors"
    "os"
    "strings"
)

// LoadEnvFiles loads dotenv files of KEY=VALUE pairs into the process
// environment. Variables already present in the environment are kept; among
// the files, later ones override earlier ones. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
    owned := map[string]bool{}
    for _, p := range paths {
        if strings.TrimSpace(p) == "" {
            continue
        }
        pairs, err := readEnvFile(p)
        if errors.Is(err, os.ErrNotExist) {
            continue
        }
        if err != nil {
            return err
        }
        for _, kv := range pairs {
            if _, set := os.LookupEnv(kv[0]); set && !owned[kv[0]] {
                continue
            }
            _ = os.Setenv(kv[0], kv[1])
            owned[kv[0]] = true
        }
    }
    return nil
}

func readEnvFile(path string) ([][2]string, error) {
    f, err := os.Open(path)
    if err != nil {
        return nil, err
    }
    defer f.Close()

    var out [][2]string
    scanner := bufio.NewScanner(f)
    for scanner.Scan() {
        line := strings.TrimSpace(scanner.Text())
        if line == "" || strings.HasPrefix(line, "#") {
            continue
        }
        line = strings.TrimPrefix(line, "export ")
        eq := strings.IndexByte(line, '=')
        if eq <= 0 {
            continue
        }
        key := strings.TrimSpace(line[:eq])
        val := strings.TrimSpace(line[eq+1:])
        if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
            val = val[1 : len(val)-1]
        } else if i := strings.Index(val, " #"); i >= 0 {
            val = strings.TrimSpace(val[:i])
        }
        out = append(out, [2]string{key, val})
    }
    return out, scanner.Err()
}
