package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	server   = flag.String("server", "http://localhost:8080", "credpool server base URL")
	apiKey   = flag.String("api-key", "", "admin API key used to seed stock")
	category = flag.String("category", "loadtest", "credential category to allocate from")
	stock    = flag.Int("stock", 10, "credentials to import before the run")
	callers  = flag.Int("callers", 20, "concurrent callers")
	quantity = flag.Int("quantity", 1, "credentials each caller asks for")
	release  = flag.Bool("release", true, "release granted credentials after the run")
)

// A hand-run client that drains a category with concurrent callers and checks
// that every credential was granted exactly once. Useful for eyeballing the
// allocator against a real deployment.
func main() {
	flag.Parse()

	if *apiKey == "" {
		log.Fatal("-api-key is required to seed stock")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	log.Printf("Seeding %d credentials into category %q", *stock, *category)
	if err := seedStock(httpClient, *stock); err != nil {
		log.Fatalf("Failed to seed stock: %v", err)
	}

	log.Printf("Registering %d callers", *callers)
	tokens := make([]string, *callers)
	for i := range tokens {
		token, err := registerAndLogin(httpClient, fmt.Sprintf("loadtest-%s", uuid.New().String()[:8]))
		if err != nil {
			log.Fatalf("Failed to register caller %d: %v", i, err)
		}
		tokens[i] = token
	}

	log.Printf("Firing %d concurrent allocations of %d", *callers, *quantity)
	start := make(chan struct{})
	var wg sync.WaitGroup

	var mu sync.Mutex
	granted := map[string]string{}
	var wins, losses, failures int
	perToken := make([][]string, len(tokens))

	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			<-start

			status, ids, err := allocate(httpClient, token, *quantity)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures++
				log.Printf("Caller %d error: %v", i, err)
			case status == http.StatusCreated:
				wins++
				perToken[i] = ids
				for _, id := range ids {
					if owner, dup := granted[id]; dup {
						log.Printf("DOUBLE ALLOCATION: %s granted to caller %s and caller %d", id, owner, i)
						failures++
					}
					granted[id] = fmt.Sprintf("%d", i)
				}
			case status == http.StatusConflict:
				losses++
			default:
				failures++
				log.Printf("Caller %d unexpected status %d", i, status)
			}
		}(i, token)
	}
	close(start)
	wg.Wait()

	log.Printf("Done: %d granted in full, %d exhausted, %d failures, %d distinct credentials handed out",
		wins, losses, failures, len(granted))

	expectedWins := *stock / *quantity
	if *callers < expectedWins {
		expectedWins = *callers
	}
	if wins != expectedWins {
		log.Printf("WARNING: expected %d winners, got %d", expectedWins, wins)
	}

	if *release {
		for i, token := range tokens {
			if len(perToken[i]) == 0 {
				continue
			}
			if err := releaseAll(httpClient, token, perToken[i]); err != nil {
				log.Printf("Failed to release for caller %d: %v", i, err)
			}
		}
		log.Println("Released granted credentials")
	}
}

func seedStock(client *http.Client, n int) error {
	type item struct {
		Category string `json:"category"`
		Secret   string `json:"secret"`
	}
	items := make([]item, n)
	for i := range items {
		items[i] = item{Category: *category, Secret: fmt.Sprintf("loadtest-conf-%s", uuid.New().String())}
	}

	body, _ := json.Marshal(map[string]any{"items": items})
	req, err := http.NewRequest("POST", *server+"/api/v1/admin/credentials/import", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", *apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("import returned %d", resp.StatusCode)
	}
	return nil
}

func registerAndLogin(client *http.Client, username string) (string, error) {
	creds := map[string]string{"username": username, "password": "loadtest-password"}
	body, _ := json.Marshal(creds)

	resp, err := client.Post(*server+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("register returned %d", resp.StatusCode)
	}

	body, _ = json.Marshal(creds)
	resp, err = client.Post(*server+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}
	return loginResp.Token, nil
}

func allocate(client *http.Client, token string, quantity int) (int, []string, error) {
	body, _ := json.Marshal(map[string]any{"category": *category, "quantity": quantity})
	req, err := http.NewRequest("POST", *server+"/api/v1/allocations", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return resp.StatusCode, nil, nil
	}

	var allocResp struct {
		Credentials []struct {
			ID string `json:"id"`
		} `json:"credentials"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&allocResp); err != nil {
		return resp.StatusCode, nil, err
	}
	ids := make([]string, 0, len(allocResp.Credentials))
	for _, cred := range allocResp.Credentials {
		ids = append(ids, cred.ID)
	}
	return resp.StatusCode, ids, nil
}

func releaseAll(client *http.Client, token string, ids []string) error {
	body, _ := json.Marshal(map[string]any{"credential_ids": ids})
	req, err := http.NewRequest("POST", *server+"/api/v1/allocations/release", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release returned %d", resp.StatusCode)
	}
	return nil
}
