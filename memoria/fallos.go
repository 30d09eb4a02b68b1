package memoria

import (
	"errors"
	"fmt"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// Errores de clasificación de un fallo: todos terminan el proceso con
// estado -1. El llamador (la trampa) decide el mecanismo de salida.
var (
	ErrDireccionInvalida = errors.New("dirección nula o de kernel")
	ErrFueraDeStack      = errors.New("acceso fuera del área de stack")
	ErrStackExcedido     = errors.New("stack supera el límite de 8 MiB")
	ErrEscrituraProhibida = errors.New("escritura sobre página de solo lectura")
	ErrLecturaCorta      = errors.New("lectura corta del archivo de respaldo")
)

// Resolutor clasifica fallos de página y los resuelve contra la tabla
// de marcos, el swap y el filesystem.
type Resolutor struct {
	marcos   *TablaMarcos
	swap     *DispositivoSwap
	metricas *RegistroMetricas
}

// NuevoResolutor arma el resolutor de fallos
func NuevoResolutor(marcos *TablaMarcos, swap *DispositivoSwap, metricas *RegistroMetricas) *Resolutor {
	return &Resolutor{marcos: marcos, swap: swap, metricas: metricas}
}

// Resolver hace presente la página que cubre dir, o devuelve un error
// si el acceso es ilegal (el proceso debe terminar con -1). espUsuario
// es el stack pointer del momento del fallo: el de la trampa si el
// fallo vino de modo usuario, el guardado en el proceso si vino de
// modo kernel.
func (r *Resolutor) Resolver(esp *Espacio, dir uint32, escritura bool, espUsuario uint32) error {
	// Caso 0: acceso directamente inválido
	if dir == 0 || dir >= BaseKernel {
		return fmt.Errorf("fallo en %#x: %w", dir, ErrDireccionInvalida)
	}

	r.metricas.RegistrarFallo(esp.PID)

	paginaDir := RedondearAPagina(dir)
	pagina := esp.BuscarPagina(paginaDir)

	// Caso 1: sin entrada SPT, candidato a crecimiento de stack
	if pagina == nil {
		return r.crecerStack(esp, dir, espUsuario)
	}

	// Caso 2: entrada existente
	if escritura && !pagina.Escribible {
		return fmt.Errorf("fallo en %#x: %w", dir, ErrEscrituraProhibida)
	}

	switch pagina.Proposito {
	case ParaArchivo, ParaMmap:
		if pagina.EnSwap {
			return r.traerDeSwap(esp, pagina, dir)
		}
		return r.cargarDeArchivo(esp, pagina)

	case ParaStack:
		if pagina.EnSwap {
			if err := r.traerDeSwap(esp, pagina, dir); err != nil {
				return err
			}
			esp.EspGuardado = dir
			return nil
		}
		// Carrera rara: la entrada existe pero nunca tuvo marco
		return r.instalarStackVacia(esp, pagina, dir)
	}

	panic(fmt.Sprintf("página %#x con propósito desconocido: %d", paginaDir, pagina.Proposito))
}

// crecerStack aplica la heurística de crecimiento: dentro del límite de
// 8 MiB y a lo sumo MargenPush bytes por debajo del esp actual.
func (r *Resolutor) crecerStack(esp *Espacio, dir uint32, espUsuario uint32) error {
	if dir <= BaseKernel-LimiteStack {
		return fmt.Errorf("fallo en %#x: %w", dir, ErrStackExcedido)
	}
	if int64(dir) < int64(espUsuario)-MargenPush {
		return fmt.Errorf("fallo en %#x con esp %#x: %w", dir, espUsuario, ErrFueraDeStack)
	}

	paginaDir := RedondearAPagina(dir)

	marco, err := r.marcos.Asignar(true)
	if err != nil {
		return err
	}
	r.marcos.Ocupar(marco.Numero, esp, paginaDir)

	pagina := esp.InsertarPagina(nil, 0, paginaDir, 0, TamPagina, true, ParaStack)
	pagina.Marco = marco.Numero

	if !esp.Directorio.Instalar(paginaDir, marco.Numero, true) {
		utils.ErrorLog.Error("Instalación de mapeo falló", "pid", esp.PID, "pagina", fmt.Sprintf("%#x", paginaDir))
	}
	r.marcos.HacerDesalojable(marco.Numero)

	esp.EspGuardado = dir

	utils.InfoLog.Info("Stack extendido", "pid", esp.PID, "pagina", fmt.Sprintf("%#x", paginaDir), "marco", marco.Numero)
	return nil
}

// cargarDeArchivo repite la carga perezosa: seek al offset de la página
// y lectura de exactamente BytesArchivo bytes, el resto en cero.
func (r *Resolutor) cargarDeArchivo(esp *Espacio, pagina *Pagina) error {
	marco, err := r.marcos.Asignar(false)
	if err != nil {
		return err
	}
	r.marcos.Ocupar(marco.Numero, esp, pagina.Direccion)

	datos := r.marcos.Datos(marco.Numero)

	n := 0
	if pagina.BytesArchivo > 0 {
		archivos.MutexFS.Lock()
		pagina.Archivo.Buscar(pagina.Offset)
		n, err = pagina.Archivo.Leer(datos[:pagina.BytesArchivo])
		archivos.MutexFS.Unlock()
	}
	if err != nil || n != pagina.BytesArchivo {
		r.marcos.Liberar(marco.Numero)
		return fmt.Errorf("página %#x: leídos %d de %d: %w",
			pagina.Direccion, n, pagina.BytesArchivo, ErrLecturaCorta)
	}
	limpiar(datos[pagina.BytesArchivo:])

	pagina.Marco = marco.Numero

	if !esp.Directorio.Instalar(pagina.Direccion, marco.Numero, pagina.Escribible) {
		utils.ErrorLog.Error("Instalación de mapeo falló", "pid", esp.PID, "pagina", fmt.Sprintf("%#x", pagina.Direccion))
	}
	r.marcos.HacerDesalojable(marco.Numero)

	utils.InfoLog.Info("Página cargada de archivo", "pid", esp.PID,
		"pagina", fmt.Sprintf("%#x", pagina.Direccion), "marco", marco.Numero, "bytes", pagina.BytesArchivo)
	return nil
}

// traerDeSwap recupera la página desde su slot y lo libera
func (r *Resolutor) traerDeSwap(esp *Espacio, pagina *Pagina, dir uint32) error {
	marco, err := r.marcos.Asignar(false)
	if err != nil {
		return err
	}
	r.marcos.Ocupar(marco.Numero, esp, pagina.Direccion)

	if err := r.swap.Leer(pagina.SlotSwap, r.marcos.Datos(marco.Numero)); err != nil {
		r.marcos.Liberar(marco.Numero)
		return err
	}
	r.swap.LiberarSlot(pagina.SlotSwap)

	pagina.EnSwap = false
	pagina.SlotSwap = SlotInvalido
	pagina.Marco = marco.Numero

	if !esp.Directorio.Instalar(pagina.Direccion, marco.Numero, pagina.Escribible) {
		utils.ErrorLog.Error("Instalación de mapeo falló", "pid", esp.PID, "pagina", fmt.Sprintf("%#x", pagina.Direccion))
	}
	r.marcos.HacerDesalojable(marco.Numero)

	r.metricas.RegistrarSubidaMemoria(esp.PID)
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Página %d recuperada de SWAP al marco %d",
		esp.PID, pagina.Direccion/TamPagina, marco.Numero))
	return nil
}

// instalarStackVacia cubre la carrera de una entrada de stack sin marco
func (r *Resolutor) instalarStackVacia(esp *Espacio, pagina *Pagina, dir uint32) error {
	marco, err := r.marcos.Asignar(true)
	if err != nil {
		return err
	}
	r.marcos.Ocupar(marco.Numero, esp, pagina.Direccion)

	pagina.Marco = marco.Numero

	if !esp.Directorio.Instalar(pagina.Direccion, marco.Numero, pagina.Escribible) {
		utils.ErrorLog.Error("Instalación de mapeo falló", "pid", esp.PID, "pagina", fmt.Sprintf("%#x", pagina.Direccion))
	}
	r.marcos.HacerDesalojable(marco.Numero)

	esp.EspGuardado = dir
	return nil
}
