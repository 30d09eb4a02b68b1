package memoria

import (
	"errors"
	"fmt"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// RegionMmap es un mapeo de archivo en el espacio de direcciones. La
// región es dueña de sus páginas; el back-link de cada página es una
// etiqueta no dueña.
type RegionMmap struct {
	ID        int
	Direccion uint32
	Tamanio   int64
	Archivo   archivos.Archivo // handle reabierto, cursor independiente
	FD        int
	Paginas   []*Pagina
}

var (
	// ErrMmapInvalido agrupa los rechazos de validación: el syscall
	// devuelve -1 y el proceso sigue
	ErrMmapInvalido = errors.New("mapeo inválido")
	// ErrRegionInexistente indica un id de región desconocido
	ErrRegionInexistente = errors.New("región inexistente")
)

// CrearRegion valida y registra un mapeo de archivo a partir de dir.
// El contenido no se carga: cada página entra por fallo. Devuelve el id
// de la región, creciente por proceso.
func CrearRegion(esp *Espacio, original archivos.Archivo, fd int, dir uint32) (int, error) {
	if dir == 0 || dir != RedondearAPagina(dir) {
		return -1, fmt.Errorf("dirección %#x: %w", dir, ErrMmapInvalido)
	}
	if dir >= BaseKernel-TamPagina {
		return -1, fmt.Errorf("dirección %#x pegada al kernel: %w", dir, ErrMmapInvalido)
	}
	if dir <= esp.FinDatos {
		return -1, fmt.Errorf("dirección %#x dentro del segmento de datos: %w", dir, ErrMmapInvalido)
	}

	archivos.MutexFS.Lock()
	tamanio := original.Tamanio()
	archivos.MutexFS.Unlock()
	if tamanio == 0 {
		return -1, fmt.Errorf("archivo vacío: %w", ErrMmapInvalido)
	}

	paginas := PaginasNecesarias(tamanio)
	if uint64(dir)+uint64(paginas)*TamPagina > uint64(BaseKernel) {
		return -1, fmt.Errorf("rango %#x..+%d páginas cruza la frontera de kernel: %w", dir, paginas, ErrMmapInvalido)
	}
	if esp.RangoOcupado(dir, paginas) {
		return -1, fmt.Errorf("rango %#x..+%d páginas ya cubierto: %w", dir, paginas, ErrMmapInvalido)
	}

	archivos.MutexFS.Lock()
	reabierto, err := original.Reabrir()
	archivos.MutexFS.Unlock()
	if err != nil {
		return -1, fmt.Errorf("error reabriendo archivo: %w", ErrMmapInvalido)
	}

	esp.mu.Lock()
	esp.proximaRegion++
	region := &RegionMmap{
		ID:        esp.proximaRegion,
		Direccion: dir,
		Tamanio:   tamanio,
		Archivo:   reabierto,
		FD:        fd,
	}
	esp.regiones = append(esp.regiones, region)
	esp.mu.Unlock()

	restante := tamanio
	offset := int64(0)
	direccion := dir
	for restante > 0 {
		bytesArchivo := TamPagina
		if restante < TamPagina {
			bytesArchivo = int(restante)
		}

		pagina := esp.InsertarPagina(region.Archivo, offset, direccion,
			bytesArchivo, TamPagina-bytesArchivo, true, ParaMmap)
		pagina.Region = region
		region.Paginas = append(region.Paginas, pagina)

		restante -= int64(bytesArchivo)
		offset += int64(bytesArchivo)
		direccion += TamPagina
	}

	utils.InfoLog.Info("Región mmap creada", "pid", esp.PID, "id", region.ID,
		"direccion", fmt.Sprintf("%#x", dir), "paginas", len(region.Paginas), "bytes", tamanio)
	return region.ID, nil
}

// BuscarRegion devuelve la región con ese id o nil
func BuscarRegion(esp *Espacio, id int) *RegionMmap {
	esp.mu.Lock()
	defer esp.mu.Unlock()
	for _, region := range esp.regiones {
		if region.ID == id {
			return region
		}
	}
	return nil
}

// EliminarRegion deshace un mapeo en dos fases: primero el writeback de
// las páginas sucias al archivo, después la liberación de marcos,
// mapeos y entradas SPT. La lista de páginas de la región es la
// autoritativa. El archivo reabierto se cierra acá, exactamente una vez.
func EliminarRegion(esp *Espacio, marcos *TablaMarcos, swap *DispositivoSwap, id int) error {
	region := BuscarRegion(esp, id)
	if region == nil {
		return fmt.Errorf("id %d: %w", id, ErrRegionInexistente)
	}

	// Fase 1: writeback de sucias, acotado por BytesArchivo
	archivos.MutexFS.Lock()
	for _, pagina := range region.Paginas {
		if pagina.Marco == MarcoInvalido || !esp.Directorio.EstaSucia(pagina.Direccion) {
			continue
		}
		datos := marcos.Datos(pagina.Marco)
		if _, err := region.Archivo.EscribirEn(datos[:pagina.BytesArchivo], pagina.Offset); err != nil {
			archivos.MutexFS.Unlock()
			return fmt.Errorf("writeback de página %#x: %v", pagina.Direccion, err)
		}
		utils.InfoLog.Info("Página mmap escrita al archivo", "pid", esp.PID,
			"pagina", fmt.Sprintf("%#x", pagina.Direccion), "bytes", pagina.BytesArchivo, "offset", pagina.Offset)
	}
	archivos.MutexFS.Unlock()

	// Fase 2: liberación
	for _, pagina := range region.Paginas {
		if pagina.Marco != MarcoInvalido {
			marcos.Liberar(pagina.Marco)
			pagina.Marco = MarcoInvalido
		}
		esp.Directorio.Limpiar(pagina.Direccion)
		if pagina.EnSwap {
			swap.LiberarSlot(pagina.SlotSwap)
			pagina.EnSwap = false
		}
		esp.EliminarPagina(pagina.Direccion)
	}

	archivos.MutexFS.Lock()
	region.Archivo.Cerrar()
	archivos.MutexFS.Unlock()

	esp.mu.Lock()
	for i, r := range esp.regiones {
		if r == region {
			esp.regiones = append(esp.regiones[:i], esp.regiones[i+1:]...)
			break
		}
	}
	esp.mu.Unlock()

	utils.InfoLog.Info("Región mmap eliminada", "pid", esp.PID, "id", id)
	return nil
}
