package nucleo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
)

func TestExecYWait(t *testing.T) {
	kernel, fs, consola := kernelDePrueba(t, 16, 16)
	crearArchivoFS(t, fs, "hijo", patron(1, 64))

	kernel.RegistrarPrograma("hijo", func(c *Contexto) {
		c.FijarEsp(espInicial)
		c.Invocar(SysExit, 7)
	})

	p := kernel.crearProceso("padre", nil)
	terminado, _ := kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		cmdline := espInicial + 64
		escribirCadena(c, cmdline, "hijo")

		pid := int(int32(c.Invocar(SysExec, cmdline)))
		require.Greater(t, pid, 0)

		assert.EqualValues(t, 7, int32(c.Invocar(SysWait, uint32(pid))))
		// Cada hijo se espera una sola vez
		assert.Equal(t, palabra(-1), c.Invocar(SysWait, uint32(pid)))
		// Un PID ajeno tampoco se puede esperar
		assert.Equal(t, palabra(-1), c.Invocar(SysWait, 9999))
	})
	assert.False(t, terminado)
	assert.Contains(t, consola.String(), "hijo: exit(7)\n")
}

func TestExecEjecutableInexistente(t *testing.T) {
	kernel, _, _ := kernelDePrueba(t, 16, 16)
	p := kernel.crearProceso("padre", nil)

	kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		cmdline := espInicial + 64
		escribirCadena(c, cmdline, "inexistente")
		assert.Equal(t, palabra(-1), c.Invocar(SysExec, cmdline))
	})
}

func TestProgramaQueRetornaSaleConCero(t *testing.T) {
	kernel, fs, consola := kernelDePrueba(t, 16, 16)
	crearArchivoFS(t, fs, "manso", patron(1, 32))

	kernel.RegistrarPrograma("manso", func(c *Contexto) {
		c.FijarEsp(espInicial)
	})

	pid := kernel.Ejecutar("manso", nil)
	require.Greater(t, pid, 0)

	proceso := kernel.Proceso(pid)
	proceso.SemFin.Wait()
	assert.Equal(t, 0, proceso.EstadoSalida())
	assert.Contains(t, consola.String(), "manso: exit(0)\n")
}

func TestCargaPerezosaDelEjecutable(t *testing.T) {
	kernel, fs, _ := kernelDePrueba(t, 16, 16)
	contenido := patron(9, memoria.TamPagina+300)
	crearArchivoFS(t, fs, "segmentado", contenido)

	var leido []byte
	kernel.RegistrarPrograma("segmentado", func(c *Contexto) {
		c.FijarEsp(espInicial)
		// El código es de solo lectura y entra por fallo
		leido = c.LeerMemoria(BaseCodigo, len(contenido))
	})

	pid := kernel.Ejecutar("segmentado", nil)
	require.Greater(t, pid, 0)
	kernel.Proceso(pid).SemFin.Wait()

	assert.Equal(t, contenido, leido)
}

func TestEscribirSobreCodigoTermina(t *testing.T) {
	kernel, fs, consola := kernelDePrueba(t, 16, 16)
	crearArchivoFS(t, fs, "protegido", patron(3, 128))

	kernel.RegistrarPrograma("protegido", func(c *Contexto) {
		c.FijarEsp(espInicial)
		c.EscribirMemoria(BaseCodigo, []byte{1})
	})

	pid := kernel.Ejecutar("protegido", nil)
	require.Greater(t, pid, 0)

	proceso := kernel.Proceso(pid)
	proceso.SemFin.Wait()
	assert.Equal(t, -1, proceso.EstadoSalida())
	assert.Contains(t, consola.String(), "protegido: exit(-1)\n")
}

func TestCrecimientoDeStackYLimites(t *testing.T) {
	kernel, _, _ := kernelDePrueba(t, 16, 16)

	// Acceso exactamente 32 bytes bajo esp: crece
	p := kernel.crearProceso("apilador", nil)
	terminado, _ := kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		c.EscribirMemoria(espInicial-32, []byte{0xAA})
		assert.Equal(t, []byte{0xAA}, c.LeerMemoria(espInicial-32, 1))
	})
	assert.False(t, terminado)
	require.NotNil(t, p.Espacio.BuscarPagina(espInicial-32))

	// Un byte más abajo del margen: muere
	q := kernel.crearProceso("profundo", nil)
	terminado, estado := kernel.EjecutarEn(q, func(c *Contexto) {
		c.FijarEsp(espInicial)
		c.EscribirMemoria(espInicial-33, []byte{0xAA})
	})
	assert.True(t, terminado)
	assert.Equal(t, -1, estado)

	// Más allá de los 8 MiB: muere
	r := kernel.crearProceso("gigante", nil)
	terminado, estado = kernel.EjecutarEn(r, func(c *Contexto) {
		dir := memoria.BaseKernel - memoria.LimiteStack - 1
		c.FijarEsp(dir)
		c.EscribirMemoria(dir, []byte{0xAA})
	})
	assert.True(t, terminado)
	assert.Equal(t, -1, estado)
}

func TestMmapMunmapConWriteback(t *testing.T) {
	kernel, fs, _ := kernelDePrueba(t, 16, 16)
	contenido := patron(5, 2*memoria.TamPagina+memoria.TamPagina/2)
	crearArchivoFS(t, fs, "mapa.bin", contenido)

	const baseMapeo = 0x10000000

	p := kernel.crearProceso("mapeador", nil)
	terminado, _ := kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		nombre := espInicial + 64
		escribirCadena(c, nombre, "mapa.bin")

		fd := c.Invocar(SysOpen, nombre)
		require.EqualValues(t, 2, fd)

		// stdin/stdout no se mapean; dirección nula tampoco
		assert.Equal(t, palabra(-1), c.Invocar(SysMmap, 0, baseMapeo))
		assert.Equal(t, palabra(-1), c.Invocar(SysMmap, 1, baseMapeo))
		assert.Equal(t, palabra(-1), c.Invocar(SysMmap, fd, 0))

		id := c.Invocar(SysMmap, fd, baseMapeo)
		require.EqualValues(t, 1, id)

		// El contenido mapeado entra por fallo
		assert.Equal(t, contenido[:16], c.LeerMemoria(baseMapeo, 16))

		// Escribir un byte en la página 1 y desmapear
		c.EscribirMemoria(baseMapeo+memoria.TamPagina, []byte{0xAB})
		c.Invocar(SysMunmap, id)
	})
	assert.False(t, terminado)

	// El byte sucio llegó al archivo en su offset
	assert.Equal(t, byte(0xAB), leerArchivoFS(t, fs, "mapa.bin", 1, memoria.TamPagina)[0])
	// El resto de la página sucia conserva el contenido original
	assert.Equal(t, contenido[memoria.TamPagina+1:memoria.TamPagina+16],
		leerArchivoFS(t, fs, "mapa.bin", 15, memoria.TamPagina+1))

	// El rango desmapeado vuelve a ser inaccesible
	terminado, estado := kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		c.LeerMemoria(baseMapeo, 1)
	})
	assert.True(t, terminado)
	assert.Equal(t, -1, estado)
}

func TestMunmapIdInexistenteTermina(t *testing.T) {
	kernel, _, _ := kernelDePrueba(t, 16, 16)
	p := kernel.crearProceso("confundido", nil)

	terminado, estado := kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		c.Invocar(SysMunmap, 42)
	})
	assert.True(t, terminado)
	assert.Equal(t, -1, estado)
}

func TestFinalizarLiberaTodosLosRecursos(t *testing.T) {
	kernel, fs, _ := kernelDePrueba(t, 4, 16)
	crearArchivoFS(t, fs, "datos.txt", patron(2, memoria.TamPagina))

	marcosTotales := kernel.Marcos.Libres()

	p := kernel.crearProceso("derrochador", nil)
	terminado, estado := kernel.EjecutarEn(p, func(c *Contexto) {
		c.FijarEsp(espInicial)
		nombre := espInicial + 64
		escribirCadena(c, nombre, "datos.txt")

		fd := c.Invocar(SysOpen, nombre)
		require.EqualValues(t, 2, fd)
		require.EqualValues(t, 1, c.Invocar(SysMmap, fd, 0x10000000))
		c.LeerMemoria(0x10000000, 8)

		// Más páginas de stack que marcos: fuerza swap antes de salir
		for i := uint32(1); i <= 4; i++ {
			c.FijarEsp(espInicial - i*memoria.TamPagina)
			c.EscribirMemoria(espInicial-i*memoria.TamPagina, []byte{byte(i)})
		}

		c.Invocar(SysExit, 3)
	})

	require.True(t, terminado)
	assert.Equal(t, 3, estado)

	// Todo devuelto: marcos, slots de swap, SPT vacía
	assert.Equal(t, marcosTotales, kernel.Marcos.Libres())
	assert.Equal(t, 0, kernel.Swap.SlotsUsados())
	assert.Empty(t, p.Espacio.PaginasOrdenadas())
	assert.Empty(t, p.Espacio.Regiones())
}
