package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// MonitorClient consulta el monitor de un kernel en ejecución
type MonitorClient struct {
	BaseURL string
	client  *http.Client
}

// NewMonitorClient crea un cliente apuntando a un monitor
func NewMonitorClient(ip string, puerto int) *MonitorClient {
	return &MonitorClient{
		BaseURL: fmt.Sprintf("http://%s:%d", ip, puerto),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// VerificarConexion verifica si el monitor está disponible
func (c *MonitorClient) VerificarConexion() error {
	resp, err := c.client.Get(fmt.Sprintf("%s/health", c.BaseURL))
	if err != nil {
		return fmt.Errorf("error al verificar conexión con %s: %v", c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("estado inesperado al verificar conexión: %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("error al decodificar respuesta de verificación: %v", err)
	}

	slog.Info("Conexión verificada", "destino", c.BaseURL, "módulo", result["module"])
	return nil
}

// Obtener hace un GET a una ruta del monitor y decodifica el JSON en destino
func (c *MonitorClient) Obtener(ruta string, destino interface{}) error {
	resp, err := c.client.Get(c.BaseURL + ruta)
	if err != nil {
		return fmt.Errorf("error consultando %s: %v", ruta, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("respuesta HTTP no exitosa: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(destino); err != nil {
		return fmt.Errorf("error al decodificar respuesta: %v", err)
	}

	return nil
}
