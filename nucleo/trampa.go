package nucleo

import (
	"fmt"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// MarcoTrampa es el estado de registros salvado al cruzar a kernel
type MarcoTrampa struct {
	ESP uint32
	EAX uint32
}

// salidaProceso viaja por panic desde el punto que decide terminar el
// proceso hasta EjecutarEn, que ejecuta el camino de salida.
type salidaProceso struct {
	estado int
}

func terminar(estado int) {
	panic(salidaProceso{estado: estado})
}

// Contexto es la vista del kernel que tiene un proceso en ejecución:
// simula los accesos a memoria del programa y la instrucción de trampa.
type Contexto struct {
	k   *Kernel
	p   *Proceso
	esp uint32
}

// Proceso devuelve el PCB del contexto
func (c *Contexto) Proceso() *Proceso {
	return c.p
}

// FijarEsp fija el stack pointer de usuario simulado
func (c *Contexto) FijarEsp(esp uint32) {
	c.esp = esp
}

// Esp devuelve el stack pointer de usuario simulado
func (c *Contexto) Esp() uint32 {
	return c.esp
}

// EjecutarEn corre código de usuario/kernel en nombre del proceso y
// captura su terminación. Devuelve si el proceso terminó y su estado.
func (k *Kernel) EjecutarEn(p *Proceso, fn Programa) (terminado bool, estado int) {
	defer func() {
		if r := recover(); r != nil {
			salida, ok := r.(salidaProceso)
			if !ok {
				panic(r)
			}
			k.Finalizar(p, salida.estado)
			terminado = true
			estado = salida.estado
		}
	}()

	fn(&Contexto{k: k, p: p})
	return false, 0
}

// falloPagina entra al resolutor como lo haría el handler de la
// interrupción 14; un fallo irresoluble termina el proceso con -1.
func (k *Kernel) falloPagina(p *Proceso, dir uint32, escritura bool, esp uint32) {
	if err := k.Resolutor.Resolver(p.Espacio, dir, escritura, esp); err != nil {
		utils.ErrorLog.Error("Fallo de página irresoluble", "pid", p.PID,
			"direccion", fmt.Sprintf("%#x", dir), "escritura", escritura, "error", err)
		terminar(-1)
	}
}

// acceder simula un acceso de usuario a una dirección: si la traducción
// no existe o la escritura está prohibida entra el fallo de página, y
// si el fallo no se resuelve el proceso muere. Devuelve el marco que
// respalda la página.
func (k *Kernel) acceder(p *Proceso, dir uint32, escritura bool, esp uint32) int {
	for intento := 0; intento < 2; intento++ {
		marco := p.Espacio.Directorio.ObtenerMarco(dir)
		if marco != memoria.MarcoInvalido {
			if escritura && !p.Espacio.Directorio.EsEscribible(dir) {
				// not_present=false: escritura sobre página protegida
				k.falloPagina(p, dir, true, esp)
				continue
			}
			p.Espacio.Directorio.RegistrarAcceso(dir, escritura)
			return marco
		}
		k.falloPagina(p, dir, escritura, esp)
	}
	// El resolutor dijo que resolvió pero la traducción no apareció
	panic(fmt.Sprintf("acceso a %#x no se estabilizó tras resolver el fallo", dir))
}

// validar replica check_valid: no nula, de usuario y actualmente
// mapeada. Cualquier incumplimiento termina el proceso con -1.
func (k *Kernel) validar(p *Proceso, dir uint32) {
	if dir == 0 || dir >= memoria.BaseKernel ||
		p.Espacio.Directorio.ObtenerMarco(dir) == memoria.MarcoInvalido {
		terminar(-1)
	}
}

// tocar replica touch_addr: un acceso de lectura que fuerza la carga
// perezosa de la página que cubre dir.
func (k *Kernel) tocar(p *Proceso, dir uint32, esp uint32) {
	k.acceder(p, dir, false, esp)
}

// leerUsuario copia n bytes desde el espacio de usuario
func (k *Kernel) leerUsuario(p *Proceso, dir uint32, n int, esp uint32) []byte {
	datos := make([]byte, 0, n)
	for n > 0 {
		marco := k.acceder(p, dir, false, esp)
		desde := int(dir - memoria.RedondearAPagina(dir))
		pedazo := memoria.TamPagina - desde
		if pedazo > n {
			pedazo = n
		}
		datos = append(datos, k.Marcos.Datos(marco)[desde:desde+pedazo]...)
		dir += uint32(pedazo)
		n -= pedazo
	}
	k.Metricas.RegistrarLectura(p.PID)
	return datos
}

// escribirUsuario copia bytes hacia el espacio de usuario
func (k *Kernel) escribirUsuario(p *Proceso, dir uint32, datos []byte, esp uint32) {
	for len(datos) > 0 {
		marco := k.acceder(p, dir, true, esp)
		desde := int(dir - memoria.RedondearAPagina(dir))
		pedazo := memoria.TamPagina - desde
		if pedazo > len(datos) {
			pedazo = len(datos)
		}
		copy(k.Marcos.Datos(marco)[desde:desde+pedazo], datos[:pedazo])
		dir += uint32(pedazo)
		datos = datos[pedazo:]
	}
	k.Metricas.RegistrarEscritura(p.PID)
}

// leerPalabra lee una palabra de 32 bits little-endian de usuario
func (k *Kernel) leerPalabra(p *Proceso, dir uint32, esp uint32) uint32 {
	b := k.leerUsuario(p, dir, 4, esp)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// leerCadena lee una cadena NUL-terminada de usuario, byte a byte: cada
// byte puede disparar un fallo resoluble (carga perezosa).
func (k *Kernel) leerCadena(p *Proceso, dir uint32, esp uint32) string {
	var bytes []byte
	for {
		marco := k.acceder(p, dir, false, esp)
		desde := dir - memoria.RedondearAPagina(dir)
		b := k.Marcos.Datos(marco)[desde]
		if b == 0 {
			return string(bytes)
		}
		bytes = append(bytes, b)
		dir++
		if dir >= memoria.BaseKernel {
			terminar(-1)
		}
	}
}

// LeerMemoria simula lecturas del programa de usuario
func (c *Contexto) LeerMemoria(dir uint32, n int) []byte {
	return c.k.leerUsuario(c.p, dir, n, c.esp)
}

// EscribirMemoria simula escrituras del programa de usuario
func (c *Contexto) EscribirMemoria(dir uint32, datos []byte) {
	c.k.escribirUsuario(c.p, dir, datos, c.esp)
}

// EscribirPalabra escribe una palabra de 32 bits little-endian
func (c *Contexto) EscribirPalabra(dir uint32, valor uint32) {
	c.EscribirMemoria(dir, []byte{
		byte(valor), byte(valor >> 8), byte(valor >> 16), byte(valor >> 24),
	})
}

// LeerPalabra lee una palabra de 32 bits little-endian
func (c *Contexto) LeerPalabra(dir uint32) uint32 {
	return c.k.leerPalabra(c.p, dir, c.esp)
}
