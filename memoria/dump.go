package memoria

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// VolcarEspacio crea un archivo con el contenido de todas las páginas
// residentes de un proceso, en orden de dirección virtual. Devuelve la
// ruta del archivo generado.
func VolcarEspacio(esp *Espacio, marcos *TablaMarcos, rutaDump string) (string, error) {
	utils.InfoLog.Info("Iniciando memory dump", "pid", esp.PID)

	timestamp := time.Now().Format("20060102-150405")
	nombreArchivo := fmt.Sprintf("%d-%s.dmp", esp.PID, timestamp)
	rutaCompleta := filepath.Join(rutaDump, nombreArchivo)

	if err := os.MkdirAll(rutaDump, 0755); err != nil {
		utils.ErrorLog.Error("Error creando directorio dump", "error", err)
		return "", fmt.Errorf("error al crear directorio para dumps: %v", err)
	}

	dumpFile, err := os.Create(rutaCompleta)
	if err != nil {
		utils.ErrorLog.Error("Error creando archivo dump", "archivo", rutaCompleta, "error", err)
		return "", fmt.Errorf("error al crear archivo de dump: %v", err)
	}
	defer dumpFile.Close()

	paginasVolcadas := 0
	for _, pagina := range esp.PaginasOrdenadas() {
		if pagina.Marco == MarcoInvalido {
			continue
		}
		if _, err := dumpFile.Write(marcos.Datos(pagina.Marco)); err != nil {
			utils.ErrorLog.Error("Error escribiendo dump", "archivo", rutaCompleta, "error", err)
			return "", fmt.Errorf("error al escribir en archivo de dump: %v", err)
		}
		paginasVolcadas++
	}

	// Log obligatorio del enunciado
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d Memory Dump solicitado", esp.PID))
	utils.InfoLog.Info("Memory dump completado", "pid", esp.PID, "archivo", nombreArchivo, "paginas", paginasVolcadas)

	return rutaCompleta, nil
}
