package nucleo

import (
	"fmt"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// BaseCodigo es la dirección donde se carga el ejecutable
const BaseCodigo uint32 = 0x08048000

// cargarEjecutable abre el ejecutable del proceso y registra sus
// páginas en la SPT como segmento de solo lectura. El contenido no se
// lee acá: cada página entra a memoria por fallo.
func (k *Kernel) cargarEjecutable(p *Proceso) error {
	archivos.MutexFS.Lock()
	ejecutable, err := k.FS.Abrir(p.Nombre)
	if err != nil {
		archivos.MutexFS.Unlock()
		return fmt.Errorf("no se pudo abrir el ejecutable %s: %v", p.Nombre, err)
	}
	tamanio := ejecutable.Tamanio()
	archivos.MutexFS.Unlock()

	if tamanio == 0 {
		archivos.MutexFS.Lock()
		ejecutable.Cerrar()
		archivos.MutexFS.Unlock()
		return fmt.Errorf("ejecutable %s vacío", p.Nombre)
	}

	restante := tamanio
	offset := int64(0)
	dir := BaseCodigo
	for restante > 0 {
		bytesArchivo := memoria.TamPagina
		if restante < memoria.TamPagina {
			bytesArchivo = int(restante)
		}
		p.Espacio.InsertarPagina(ejecutable, offset, dir,
			bytesArchivo, memoria.TamPagina-bytesArchivo, false, memoria.ParaArchivo)

		restante -= int64(bytesArchivo)
		offset += int64(bytesArchivo)
		dir += memoria.TamPagina
	}

	p.ejecutable = ejecutable
	p.Espacio.FinDatos = dir

	// Log obligatorio del enunciado
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Proceso Creado - Tamaño: %d", p.PID, tamanio))
	utils.InfoLog.Info("Ejecutable cargado en forma perezosa", "pid", p.PID,
		"nombre", p.Nombre, "paginas", memoria.PaginasNecesarias(tamanio))
	return nil
}
