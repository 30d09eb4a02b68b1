package memoria

import (
	"fmt"
	"sync"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// Marco es el registro de un marco físico del pool de usuario. Direccion
// y Propietario son una pista rompible: solo valen bajo el lock de la
// tabla; la dueña de la verdad es la SPT del proceso.
type Marco struct {
	Numero      int
	Direccion   uint32 // página virtual respaldada, 0 si libre
	Propietario *Espacio
	Desalojable bool
	ocupado     bool
}

// TablaMarcos es el registro global de marcos físicos. El pool está
// respaldado por un único arreglo de bytes (la "memoria principal").
// Orden de locks: TablaMarcos → bitmap de swap → MutexFS.
type TablaMarcos struct {
	mu        sync.Mutex
	memoria   []byte
	marcos    []Marco
	manecilla int
	swap      *DispositivoSwap
	metricas  *RegistroMetricas
	retardo   int
}

// NuevaTablaMarcos crea el pool de marcos de usuario
func NuevaTablaMarcos(tamanioBytes int, swap *DispositivoSwap, metricas *RegistroMetricas, retardoMs int) *TablaMarcos {
	total := tamanioBytes / TamPagina
	t := &TablaMarcos{
		memoria:  make([]byte, total*TamPagina),
		marcos:   make([]Marco, total),
		swap:     swap,
		metricas: metricas,
		retardo:  retardoMs,
	}
	for i := range t.marcos {
		t.marcos[i].Numero = i
	}
	utils.InfoLog.Info("Tabla de marcos inicializada", "total_marcos", total, "bytes", len(t.memoria))
	return t
}

// Datos devuelve la ventana de memoria principal de un marco
func (t *TablaMarcos) Datos(numero int) []byte {
	base := numero * TamPagina
	return t.memoria[base : base+TamPagina]
}

// Buscar devuelve el registro de un marco por número
func (t *TablaMarcos) Buscar(numero int) *Marco {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &t.marcos[numero]
}

// Libres cuenta los marcos sin ocupar
func (t *TablaMarcos) Libres() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	libres := 0
	for i := range t.marcos {
		if !t.marcos[i].ocupado {
			libres++
		}
	}
	return libres
}

// Asignar devuelve un marco del pool, desalojando si no hay libres. El
// marco vuelve pinneado (Desalojable=false): el llamador lo libera para
// desalojo recién después de programar la MMU.
func (t *TablaMarcos) Asignar(cero bool) (*Marco, error) {
	utils.AplicarRetardo("memoria", t.retardo)

	t.mu.Lock()
	defer t.mu.Unlock()

	marco := t.buscarLibre()
	if marco == nil {
		numero, err := t.desalojar()
		if err != nil {
			return nil, err
		}
		marco = &t.marcos[numero]
	}

	marco.ocupado = true
	marco.Desalojable = false
	marco.Direccion = 0
	marco.Propietario = nil

	if cero {
		limpiar(t.Datos(marco.Numero))
	}
	return marco, nil
}

func (t *TablaMarcos) buscarLibre() *Marco {
	for i := range t.marcos {
		if !t.marcos[i].ocupado {
			return &t.marcos[i]
		}
	}
	return nil
}

// Ocupar asocia un marco recién asignado a su página. Se llama con el
// marco todavía pinneado.
func (t *TablaMarcos) Ocupar(numero int, propietario *Espacio, dir uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	marco := &t.marcos[numero]
	marco.Propietario = propietario
	marco.Direccion = RedondearAPagina(dir)
}

// HacerDesalojable habilita el desalojo de un marco. Solo después de que
// el camino de instalación terminó de programar la MMU.
func (t *TablaMarcos) HacerDesalojable(numero int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marcos[numero].Desalojable = true
}

// Liberar devuelve un marco al pool y limpia su registro
func (t *TablaMarcos) Liberar(numero int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	marco := &t.marcos[numero]
	marco.ocupado = false
	marco.Desalojable = false
	marco.Direccion = 0
	marco.Propietario = nil
	limpiar(t.Datos(numero))
}

// desalojar elige una víctima con reloj de segunda oportunidad y vuelca
// su contenido según el propósito de la página. Se llama con t.mu
// tomado y devuelve el número de marco ya vacío. Pánico si no existe
// ningún marco desalojable: el llamador debía pinnear lo que necesita.
func (t *TablaMarcos) desalojar() (int, error) {
	victima := t.elegirVictima()
	marco := &t.marcos[victima]

	// Pinnear y cortar el mapeo antes de decidir el destino: desde acá
	// ninguna escritura de usuario puede ensuciar la página.
	marco.Desalojable = false
	propietario := marco.Propietario
	dir := marco.Direccion

	pagina := propietario.BuscarPagina(dir)
	if pagina == nil {
		panic(fmt.Sprintf("marco %d sin entrada SPT: PID %d, página %#x", victima, propietario.PID, dir))
	}

	sucia := propietario.Directorio.EstaSucia(dir)
	propietario.Directorio.Limpiar(dir)

	switch {
	case pagina.Proposito == ParaMmap && sucia:
		// Writeback al archivo: soltar el lock de marcos durante la E/S,
		// la víctima queda pinneada y sin mapeo
		datos := make([]byte, pagina.BytesArchivo)
		copy(datos, t.Datos(victima)[:pagina.BytesArchivo])

		t.mu.Unlock()
		archivos.MutexFS.Lock()
		_, err := pagina.Archivo.EscribirEn(datos, pagina.Offset)
		archivos.MutexFS.Unlock()
		t.mu.Lock()

		if err != nil {
			panic(fmt.Sprintf("writeback de mmap falló: PID %d, página %#x: %v", propietario.PID, dir, err))
		}

	case pagina.Proposito == ParaStack,
		pagina.Proposito == ParaArchivo && pagina.Escribible && sucia:
		slot, err := t.swap.AsignarSlot()
		if err != nil {
			return 0, err
		}
		if err := t.swap.Escribir(slot, t.Datos(victima)); err != nil {
			t.swap.LiberarSlot(slot)
			return 0, err
		}
		pagina.EnSwap = true
		pagina.SlotSwap = slot
		t.metricas.RegistrarBajadaSwap(propietario.PID)
		utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Datos movidos a SWAP - Página: %d",
			propietario.PID, dir/TamPagina))

	default:
		// Limpia y recargable desde su archivo: sin E/S
	}

	pagina.Marco = MarcoInvalido

	marco.Direccion = 0
	marco.Propietario = nil

	utils.InfoLog.Info("Marco desalojado", "marco", victima, "pid", propietario.PID,
		"pagina", fmt.Sprintf("%#x", dir), "proposito", pagina.Proposito.String())
	return victima, nil
}

// elegirVictima avanza la manecilla del reloj: a los marcos con bit de
// accedida prendido se les da una segunda oportunidad.
func (t *TablaMarcos) elegirVictima() int {
	for vuelta := 0; vuelta < 2*len(t.marcos); vuelta++ {
		marco := &t.marcos[t.manecilla]
		t.manecilla = (t.manecilla + 1) % len(t.marcos)

		if !marco.ocupado || !marco.Desalojable {
			continue
		}
		if marco.Propietario.Directorio.FueAccedida(marco.Direccion) {
			marco.Propietario.Directorio.LimpiarAccedida(marco.Direccion)
			continue
		}
		return marco.Numero
	}
	panic("no hay marcos desalojables: todos pinneados")
}

func limpiar(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
