//go:build integration

package testutils

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

type TypesenseTestContainer struct {
	Pool     *dockertest.Pool
	Resource *dockertest.Resource
	URL      string
	APIKey   string
}

// SetupTestTypesense starts a Typesense server with its data directory on
// tmpfs and waits for /health to answer.
func SetupTestTypesense() (*TypesenseTestContainer, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("could not construct pool: %w", err)
	}

	// Docker Desktop does not always export DOCKER_HOST.
	if err := pool.Client.Ping(); err != nil {
		pool, err = dockertest.NewPool("unix:///var/run/docker.sock")
		if err != nil {
			return nil, fmt.Errorf("could not construct pool with explicit endpoint: %w", err)
		}
		if err := pool.Client.Ping(); err != nil {
			return nil, fmt.Errorf("could not connect to Docker: %w", err)
		}
	}

	apiKey := "test-api-key-12345"

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "typesense/typesense",
		Tag:        "28.0",
		Cmd: []string{
			"--data-dir=/data",
			"--api-key=" + apiKey,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		config.Tmpfs = map[string]string{
			"/data": "size=100m",
		}
	})
	if err != nil {
		return nil, fmt.Errorf("could not start resource: %w", err)
	}

	url := fmt.Sprintf("http://%s", resource.GetHostPort("8108/tcp"))
	resource.Expire(300)
	pool.MaxWait = 120 * time.Second

	client := &http.Client{Timeout: 5 * time.Second}
	err = pool.Retry(func() error {
		req, err := http.NewRequest(http.MethodGet, url+"/health", nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-TYPESENSE-API-KEY", apiKey)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("typesense not ready, status: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		logs, _ := getContainerLogs(pool, resource)
		pool.Purge(resource)
		return nil, fmt.Errorf("could not connect to typesense: %w\n%s", err, logs)
	}

	return &TypesenseTestContainer{
		Pool:     pool,
		Resource: resource,
		URL:      url,
		APIKey:   apiKey,
	}, nil
}

func (c *TypesenseTestContainer) Cleanup() error {
	if err := c.Pool.Purge(c.Resource); err != nil {
		return fmt.Errorf("could not purge resource: %w", err)
	}
	return nil
}

// getContainerLogs retrieves the last lines a container wrote.
func getContainerLogs(pool *dockertest.Pool, resource *dockertest.Resource) (string, error) {
	var buf bytes.Buffer
	err := pool.Client.Logs(docker.LogsOptions{
		Container:    resource.Container.ID,
		OutputStream: &buf,
		ErrorStream:  &buf,
		Stdout:       true,
		Stderr:       true,
		Tail:         "50",
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
