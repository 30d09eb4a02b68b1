package utils

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// CargarEntorno levanta un archivo .env si existe. Las variables ya
// presentes en el entorno tienen prioridad sobre las del archivo.
func CargarEntorno() {
	if err := godotenv.Load(); err == nil {
		slog.Info("Archivo .env cargado")
	}
}

// RutaConfigDesdeEntorno resuelve la ruta del archivo de configuración:
// primero el argumento, después la variable de entorno, último el default.
func RutaConfigDesdeEntorno(arg string, variable string, porDefecto string) string {
	if arg != "" {
		return arg
	}
	if ruta := os.Getenv(variable); ruta != "" {
		return ruta
	}
	return porDefecto
}

// CargarConfiguracion decodifica un archivo JSON al tipo de configuración
// del módulo. Cualquier error es fatal: sin configuración no hay boot.
func CargarConfiguracion[T any](ruta string) *T {
	slog.Info("Cargando configuración", "ruta", ruta)

	absPath, err := filepath.Abs(ruta)
	if err != nil {
		slog.Error("Error obteniendo ruta absoluta", "error", err, "ruta", ruta)
		os.Exit(1)
	}

	file, err := os.Open(absPath)
	if err != nil {
		slog.Error("Error abriendo archivo de configuración", "error", err, "archivo", absPath)
		os.Exit(1)
	}
	defer file.Close()

	var config T
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		slog.Error("Error decodificando configuración", "error", err, "archivo", absPath)
		os.Exit(1)
	}

	slog.Info("Configuración cargada correctamente")
	return &config
}
